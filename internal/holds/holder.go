// Package holds реализует бронирование экземпляров для выдачи: бронь на ограниченное окно,
// подтверждение выдачи, отмену и автоматическое снятие истёкших броней.
//
// Источником истины для статуса экземпляра служит условное обновление в хранилище;
// реестр броней в памяти процесса является кешем с TTL поверх него.
// Все операции над одним экземпляром сериализуются блокировкой по его идентификатору.
package holds

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
)

const (
	// DefaultWindow задаёт время, в течение которого читатель должен забрать экземпляр.
	DefaultWindow = 3 * time.Hour
	// DefaultLoanPeriod задаёт срок выдачи после подтверждения.
	DefaultLoanPeriod = 14 * 24 * time.Hour
)

var (
	// ErrMemberRequired возвращается, если читатель не идентифицирован.
	ErrMemberRequired = errors.New("member identification required")
	// ErrInvalidBookID возвращается при некорректном идентификаторе экземпляра.
	ErrInvalidBookID = errors.New("invalid book id")
)

// ContentionError сообщает, что экземпляр уже занят живой бронью или открытой выдачей.
type ContentionError struct {
	Status model.BookStatus
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("Book is currently %s", e.Status)
}

// Store описывает хранилище, в котором атомарно меняется статус экземпляра.
type Store interface {
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	ReserveBook(ctx context.Context, hold model.Hold) error
	HasActiveClaim(ctx context.Context, bookID int64, now time.Time) (bool, error)
	HealBookStatus(ctx context.Context, bookID int64, from model.BookStatus, now time.Time) (bool, error)
	ConfirmPickup(ctx context.Context, bookID, memberID int64, now, dueAt time.Time) (model.Loan, error)
	CancelHold(ctx context.Context, bookID, memberID int64) error
	ExpireHolds(ctx context.Context, now time.Time) ([]int64, error)
	ListLiveHolds(ctx context.Context, now time.Time) ([]model.Hold, error)
	CreateDigitalLoan(ctx context.Context, bookID, memberID int64, now, dueAt time.Time) (model.Loan, error)
	ReturnLoan(ctx context.Context, bookID, memberID int64, now time.Time) (model.Loan, error)
}

// Mirror получает копию живых броней для внешних наблюдателей. Ошибки зеркала не влияют на операции.
type Mirror interface {
	SaveHold(ctx context.Context, hold model.Hold, ttl time.Duration) error
	DeleteHold(ctx context.Context, bookID int64) error
}

type nopMirror struct{}

func (nopMirror) SaveHold(context.Context, model.Hold, time.Duration) error { return nil }
func (nopMirror) DeleteHold(context.Context, int64) error                  { return nil }

// Options задаёт параметры Holder. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	Window     time.Duration
	LoanPeriod time.Duration
	Now        func() time.Time
}

// Result описывает итог запроса на бронь.
type Result struct {
	BookID         int64
	PickupDeadline *time.Time
	DueAt          *time.Time
	Message        string
}

type copyLock struct {
	mu   sync.Mutex
	refs int
}

// Holder управляет бронями экземпляров.
type Holder struct {
	store  Store
	mirror Mirror
	logger *zap.Logger

	window     time.Duration
	loanPeriod time.Duration
	now        func() time.Time

	mu       sync.Mutex
	registry map[int64]model.Hold

	locksMu sync.Mutex
	locks   map[int64]*copyLock

	sweepMu sync.Mutex
}

// NewHolder создаёт Holder. mirror может быть nil.
func NewHolder(store Store, mirror Mirror, logger *zap.Logger, opts Options) *Holder {
	if mirror == nil {
		mirror = nopMirror{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.LoanPeriod <= 0 {
		opts.LoanPeriod = DefaultLoanPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Holder{
		store:      store,
		mirror:     mirror,
		logger:     logger,
		window:     opts.Window,
		loanPeriod: opts.LoanPeriod,
		now:        opts.Now,
		registry:   make(map[int64]model.Hold),
		locks:      make(map[int64]*copyLock),
	}
}

// lock захватывает блокировку экземпляра и возвращает функцию её освобождения.
func (h *Holder) lock(bookID int64) func() {
	h.locksMu.Lock()
	l, ok := h.locks[bookID]
	if !ok {
		l = &copyLock{}
		h.locks[bookID] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, bookID)
		}
		h.locksMu.Unlock()
	}
}

func validate(bookID, memberID int64) error {
	if bookID <= 0 {
		return ErrInvalidBookID
	}
	if memberID <= 0 {
		return ErrMemberRequired
	}
	return nil
}

// Load заполняет реестр живыми бронями из хранилища. Вызывается при старте процесса.
func (h *Holder) Load(ctx context.Context) error {
	live, err := h.store.ListLiveHolds(ctx, h.now())
	if err != nil {
		return fmt.Errorf("load holds: %w", err)
	}

	h.mu.Lock()
	for _, hold := range live {
		h.registry[hold.BookID] = hold
	}
	h.mu.Unlock()

	h.logger.Info("hold registry loaded", zap.Int("holds", len(live)))
	return nil
}

// RequestHold бронирует экземпляр для читателя. Цифровые экземпляры выдаются сразу.
func (h *Holder) RequestHold(ctx context.Context, bookID, memberID int64) (Result, error) {
	if err := validate(bookID, memberID); err != nil {
		return Result{}, err
	}

	h.sweepExpired(ctx)

	unlock := h.lock(bookID)
	defer unlock()

	now := h.now()

	book, err := h.store.GetBook(ctx, bookID)
	if err != nil {
		return Result{}, err
	}

	if book.Status == model.BookStatusLost {
		return Result{}, &ContentionError{Status: book.Status}
	}

	if book.Format == model.BookFormatDigital {
		loan, err := h.store.CreateDigitalLoan(ctx, bookID, memberID, now, now.Add(h.loanPeriod))
		if err != nil {
			return Result{}, err
		}
		return Result{
			BookID:  bookID,
			DueAt:   &loan.DueAt,
			Message: "Digital book borrowed successfully",
		}, nil
	}

	if book.Status != model.BookStatusAvailable {
		if err := h.reconcile(ctx, book, now); err != nil {
			return Result{}, err
		}
	}

	hold := model.Hold{
		BookID:    bookID,
		MemberID:  memberID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.window),
	}

	if err := h.store.ReserveBook(ctx, hold); err != nil {
		if errors.Is(err, repository.ErrBookUnavailable) {
			return Result{}, h.contention(ctx, bookID)
		}
		return Result{}, err
	}

	h.mu.Lock()
	h.registry[bookID] = hold
	h.mu.Unlock()

	if err := h.mirror.SaveHold(ctx, hold, h.window); err != nil {
		h.logger.Warn("mirror hold failed", zap.Error(err), zap.Int64("bookID", bookID))
	}

	h.logger.Info("book reserved",
		zap.Int64("bookID", bookID),
		zap.Int64("memberID", memberID),
		zap.Time("expiresAt", hold.ExpiresAt),
	)

	return Result{
		BookID:         bookID,
		PickupDeadline: &hold.ExpiresAt,
		Message:        fmt.Sprintf("Book reserved. Please pick it up within %s", formatWindow(h.window)),
	}, nil
}

// reconcile проверяет, занят ли экземпляр на самом деле. Если статус остался от
// прерванной операции и ни брони, ни выдачи нет, статус исправляется на available.
func (h *Holder) reconcile(ctx context.Context, book *model.Book, now time.Time) error {
	if book.Status == model.BookStatusLost {
		return &ContentionError{Status: book.Status}
	}

	h.mu.Lock()
	cached, ok := h.registry[book.ID]
	h.mu.Unlock()
	if ok && !cached.Expired(now) {
		return &ContentionError{Status: book.Status}
	}

	claimed, err := h.store.HasActiveClaim(ctx, book.ID, now)
	if err != nil {
		return err
	}
	if claimed {
		return &ContentionError{Status: book.Status}
	}

	healed, err := h.store.HealBookStatus(ctx, book.ID, book.Status, now)
	if err != nil {
		// Решение всё равно примет условное обновление в ReserveBook.
		h.logger.Warn("heal book status failed", zap.Error(err), zap.Int64("bookID", book.ID))
		return nil
	}
	if healed {
		h.logger.Info("stale book status corrected",
			zap.Int64("bookID", book.ID),
			zap.String("from", string(book.Status)),
		)
	}

	h.mu.Lock()
	if cached, ok := h.registry[book.ID]; ok && cached.Expired(now) {
		delete(h.registry, book.ID)
	}
	h.mu.Unlock()

	return nil
}

func (h *Holder) contention(ctx context.Context, bookID int64) error {
	book, err := h.store.GetBook(ctx, bookID)
	if err != nil {
		return &ContentionError{Status: model.BookStatusReserved}
	}
	return &ContentionError{Status: book.Status}
}

// ListHolds возвращает живые брони, при bookID != nil только по одному экземпляру.
func (h *Holder) ListHolds(ctx context.Context, bookID *int64) []model.Hold {
	h.sweepExpired(ctx)

	now := h.now()

	h.mu.Lock()
	res := make([]model.Hold, 0, len(h.registry))
	for id, hold := range h.registry {
		if bookID != nil && id != *bookID {
			continue
		}
		if hold.Expired(now) {
			continue
		}
		res = append(res, hold)
	}
	h.mu.Unlock()

	slices.SortFunc(res, func(a, b model.Hold) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return cmp.Compare(a.BookID, b.BookID)
	})

	return res
}

// ConfirmPickup превращает бронь читателя в выдачу.
func (h *Holder) ConfirmPickup(ctx context.Context, bookID, memberID int64) (model.Loan, error) {
	if err := validate(bookID, memberID); err != nil {
		return model.Loan{}, err
	}

	h.sweepExpired(ctx)

	unlock := h.lock(bookID)
	defer unlock()

	now := h.now()

	loan, err := h.store.ConfirmPickup(ctx, bookID, memberID, now, now.Add(h.loanPeriod))
	if err != nil {
		if errors.Is(err, repository.ErrHoldNotFound) {
			h.forget(ctx, bookID, memberID)
		}
		return model.Loan{}, err
	}

	h.forget(ctx, bookID, memberID)

	h.logger.Info("book picked up",
		zap.Int64("bookID", bookID),
		zap.Int64("memberID", memberID),
		zap.Time("dueAt", loan.DueAt),
	)

	return loan, nil
}

// CancelHold снимает бронь читателя и освобождает экземпляр.
func (h *Holder) CancelHold(ctx context.Context, bookID, memberID int64) error {
	if err := validate(bookID, memberID); err != nil {
		return err
	}

	h.sweepExpired(ctx)

	unlock := h.lock(bookID)
	defer unlock()

	err := h.store.CancelHold(ctx, bookID, memberID)
	if err != nil && !errors.Is(err, repository.ErrHoldNotFound) {
		return err
	}

	h.forget(ctx, bookID, memberID)

	if err != nil {
		return err
	}

	h.logger.Info("hold cancelled", zap.Int64("bookID", bookID), zap.Int64("memberID", memberID))
	return nil
}

// ReturnLoan закрывает открытую выдачу читателя.
func (h *Holder) ReturnLoan(ctx context.Context, bookID, memberID int64) (model.Loan, error) {
	if err := validate(bookID, memberID); err != nil {
		return model.Loan{}, err
	}

	unlock := h.lock(bookID)
	defer unlock()

	loan, err := h.store.ReturnLoan(ctx, bookID, memberID, h.now())
	if err != nil {
		return model.Loan{}, err
	}

	h.logger.Info("book returned", zap.Int64("bookID", bookID), zap.Int64("memberID", memberID))
	return loan, nil
}

// forget удаляет из реестра бронь экземпляра, если она принадлежит читателю.
func (h *Holder) forget(ctx context.Context, bookID, memberID int64) {
	h.mu.Lock()
	hold, ok := h.registry[bookID]
	if ok && hold.MemberID == memberID {
		delete(h.registry, bookID)
	}
	h.mu.Unlock()

	if ok && hold.MemberID == memberID {
		if err := h.mirror.DeleteHold(ctx, bookID); err != nil {
			h.logger.Warn("mirror delete failed", zap.Error(err), zap.Int64("bookID", bookID))
		}
	}
}

// Sweep снимает истёкшие брони и освобождает экземпляры. Возвращает число снятых броней.
// Ошибки хранилища журналируются и не возвращаются: жизнь брони определяет её срок.
func (h *Holder) Sweep(ctx context.Context) int {
	return h.sweep(ctx, true)
}

// sweepExpired выполняется перед операциями с бронями. К хранилищу обращается, только
// если в реестре есть истёкшие брони; остальное снимает периодический Sweep.
func (h *Holder) sweepExpired(ctx context.Context) int {
	return h.sweep(ctx, false)
}

func (h *Holder) expiredIDs(now time.Time) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var expired []int64
	for id, hold := range h.registry {
		if hold.Expired(now) {
			expired = append(expired, id)
		}
	}
	return expired
}

func (h *Holder) sweep(ctx context.Context, full bool) int {
	if !full && len(h.expiredIDs(h.now())) == 0 {
		return 0
	}

	h.sweepMu.Lock()
	defer h.sweepMu.Unlock()

	now := h.now()
	expired := h.expiredIDs(now)
	if !full && len(expired) == 0 {
		return 0
	}

	slices.Sort(expired)

	unlocks := make([]func(), 0, len(expired))
	for _, id := range expired {
		unlocks = append(unlocks, h.lock(id))
	}
	defer func() {
		for _, unlock := range unlocks {
			unlock()
		}
	}()

	removed := make(map[int64]struct{}, len(expired))

	h.mu.Lock()
	for _, id := range expired {
		if hold, ok := h.registry[id]; ok && hold.Expired(now) {
			delete(h.registry, id)
			removed[id] = struct{}{}
		}
	}
	h.mu.Unlock()

	released, err := h.store.ExpireHolds(ctx, now)
	if err != nil {
		h.logger.Warn("expire holds in store failed", zap.Error(err))
	}
	for _, id := range released {
		removed[id] = struct{}{}
	}

	for id := range removed {
		if err := h.mirror.DeleteHold(ctx, id); err != nil {
			h.logger.Warn("mirror delete failed", zap.Error(err), zap.Int64("bookID", id))
		}
	}

	if len(removed) > 0 {
		h.logger.Info("expired holds released", zap.Int("count", len(removed)))
	}

	return len(removed)
}

// Run периодически запускает Sweep до отмены контекста.
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
