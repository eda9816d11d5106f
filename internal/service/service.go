// Package service реализует бизнес-логику библиотечного сервиса.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/openlibrary"
	"github.com/mmeshcher/library-system/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMemberBlacklisted возвращается, если заблокированный читатель пытается продлить абонемент.
	ErrMemberBlacklisted = errors.New("member is blacklisted")
	// ErrInvalidISBN возвращается при некорректной контрольной сумме ISBN.
	ErrInvalidISBN = errors.New("invalid isbn")
	// ErrImportUnavailable возвращается, если клиент Open Library не настроен.
	ErrImportUnavailable = errors.New("isbn import is not configured")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateMember(ctx context.Context, name, email string, passwordHash []byte) (int64, error)
	GetMemberByEmail(ctx context.Context, email string) (*model.Member, error)
	GetMember(ctx context.Context, id int64) (*model.Member, error)
	ListMembers(ctx context.Context, limit, offset int) ([]model.Member, error)
	SetMemberBlacklisted(ctx context.Context, id int64, blacklisted bool) error
	RenewMembership(ctx context.Context, memberID int64, pkg model.Package, now time.Time) (*model.Member, *model.Payment, error)
	ListPayments(ctx context.Context, memberID *int64, limit, offset int) ([]model.Payment, error)
	LoansByMember(ctx context.Context, memberID int64, openOnly bool) ([]model.Loan, error)
	HoldsByMember(ctx context.Context, memberID int64, now time.Time) ([]model.Hold, error)

	CreateStaff(ctx context.Context, s model.Staff) (int64, error)
	GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error)
	ListStaff(ctx context.Context) ([]model.Staff, error)
	UpdateStaff(ctx context.Context, s model.Staff) error
	DeleteStaff(ctx context.Context, id int64) error

	SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	CreateBook(ctx context.Context, b model.Book) (int64, error)
	UpdateBook(ctx context.Context, b model.Book) error
	SetBookLost(ctx context.Context, id int64, lost bool) error
	DeleteBook(ctx context.Context, id int64) error

	CreateAuthor(ctx context.Context, a model.Author) (int64, error)
	FindAuthorByName(ctx context.Context, name string) (*model.Author, error)
	ListAuthors(ctx context.Context) ([]model.Author, error)
	UpdateAuthor(ctx context.Context, a model.Author) error
	DeleteAuthor(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, c model.Category) (int64, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateCategory(ctx context.Context, c model.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	CreateBranch(ctx context.Context, b model.Branch) (int64, error)
	ListBranches(ctx context.Context) ([]model.Branch, error)
	UpdateBranch(ctx context.Context, b model.Branch) error
	DeleteBranch(ctx context.Context, id int64) error

	CreatePackage(ctx context.Context, p model.Package) (int64, error)
	GetPackage(ctx context.Context, id int64) (*model.Package, error)
	ListPackages(ctx context.Context) ([]model.Package, error)
	UpdatePackage(ctx context.Context, p model.Package) error
	DeletePackage(ctx context.Context, id int64) error
}

// Holder описывает операции бронирования, которые сервис делегирует holds.Holder.
type Holder interface {
	RequestHold(ctx context.Context, bookID, memberID int64) (holds.Result, error)
	ListHolds(ctx context.Context, bookID *int64) []model.Hold
	ConfirmPickup(ctx context.Context, bookID, memberID int64) (model.Loan, error)
	CancelHold(ctx context.Context, bookID, memberID int64) error
	ReturnLoan(ctx context.Context, bookID, memberID int64) (model.Loan, error)
}

// MetadataSource возвращает метаданные издания по ISBN.
type MetadataSource interface {
	Lookup(ctx context.Context, isbn string) (*openlibrary.Edition, error)
}

// Service содержит бизнес-логику библиотечного сервиса.
type Service struct {
	repo     Repository
	holder   Holder
	metadata MetadataSource
	now      func() time.Time
}

// NewService создаёт сервис. metadata может быть nil, тогда импорт по ISBN недоступен.
func NewService(repo Repository, holder Holder, metadata MetadataSource) *Service {
	return &Service{
		repo:     repo,
		holder:   holder,
		metadata: metadata,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Signup регистрирует нового читателя.
func (s *Service) Signup(ctx context.Context, name, email, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.repo.CreateMember(ctx, strings.TrimSpace(name), normalizeEmail(email), hash)
}

// Login проверяет email и пароль читателя и возвращает его идентификатор.
func (s *Service) Login(ctx context.Context, email, password string) (int64, error) {
	m, err := s.repo.GetMemberByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if bcrypt.CompareHashAndPassword(m.PasswordHash, []byte(password)) != nil {
		return 0, ErrInvalidCredentials
	}
	return m.ID, nil
}

// StaffLogin проверяет email и пароль сотрудника.
func (s *Service) StaffLogin(ctx context.Context, email, password string) (*model.Staff, error) {
	st, err := s.repo.GetStaffByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrStaffNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(st.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return st, nil
}

// CreateStaff создаёт сотрудника с указанным паролем.
func (s *Service) CreateStaff(ctx context.Context, st model.Staff, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	st.Email = normalizeEmail(st.Email)
	st.PasswordHash = hash
	if st.Role == "" {
		st.Role = model.StaffRoleLibrarian
	}
	return s.repo.CreateStaff(ctx, st)
}

// RequestHold бронирует экземпляр для читателя.
func (s *Service) RequestHold(ctx context.Context, bookID, memberID int64) (holds.Result, error) {
	return s.holder.RequestHold(ctx, bookID, memberID)
}

// ListHolds возвращает живые брони.
func (s *Service) ListHolds(ctx context.Context, bookID *int64) []model.Hold {
	return s.holder.ListHolds(ctx, bookID)
}

// ConfirmPickup подтверждает выдачу забронированного экземпляра.
func (s *Service) ConfirmPickup(ctx context.Context, bookID, memberID int64) (model.Loan, error) {
	return s.holder.ConfirmPickup(ctx, bookID, memberID)
}

// CancelHold снимает бронь читателя.
func (s *Service) CancelHold(ctx context.Context, bookID, memberID int64) error {
	return s.holder.CancelHold(ctx, bookID, memberID)
}

// ReturnLoan принимает экземпляр от читателя.
func (s *Service) ReturnLoan(ctx context.Context, bookID, memberID int64) (model.Loan, error) {
	return s.holder.ReturnLoan(ctx, bookID, memberID)
}
