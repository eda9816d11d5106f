// Package handler содержит HTTP-обработчики API библиотечного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/openlibrary"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/service"
	"github.com/mmeshcher/library-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Signup(ctx context.Context, name, email, password string) (int64, error)
	Login(ctx context.Context, email, password string) (int64, error)
	StaffLogin(ctx context.Context, email, password string) (*model.Staff, error)

	RequestHold(ctx context.Context, bookID, memberID int64) (holds.Result, error)
	ListHolds(ctx context.Context, bookID *int64) []model.Hold
	ConfirmPickup(ctx context.Context, bookID, memberID int64) (model.Loan, error)
	CancelHold(ctx context.Context, bookID, memberID int64) error
	ReturnLoan(ctx context.Context, bookID, memberID int64) (model.Loan, error)

	Profile(ctx context.Context, memberID int64) (*service.Profile, error)
	LoanHistory(ctx context.Context, memberID int64) ([]model.Loan, error)
	Renew(ctx context.Context, memberID, packageID int64) (*model.Member, *model.Payment, error)

	SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	CreateBook(ctx context.Context, b model.Book) (*model.Book, error)
	UpdateBook(ctx context.Context, b model.Book) (*model.Book, error)
	SetBookLost(ctx context.Context, id int64, lost bool) error
	DeleteBook(ctx context.Context, id int64) error
	ImportByISBN(ctx context.Context, isbn string, branchID *int64, format model.BookFormat) (*model.Book, error)

	ListAuthors(ctx context.Context) ([]model.Author, error)
	CreateAuthor(ctx context.Context, a model.Author) (int64, error)
	UpdateAuthor(ctx context.Context, a model.Author) error
	DeleteAuthor(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (int64, error)
	UpdateCategory(ctx context.Context, c model.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListBranches(ctx context.Context) ([]model.Branch, error)
	CreateBranch(ctx context.Context, b model.Branch) (int64, error)
	UpdateBranch(ctx context.Context, b model.Branch) error
	DeleteBranch(ctx context.Context, id int64) error

	ListStaff(ctx context.Context) ([]model.Staff, error)
	CreateStaff(ctx context.Context, st model.Staff, password string) (int64, error)
	UpdateStaff(ctx context.Context, st model.Staff) error
	DeleteStaff(ctx context.Context, id int64) error

	ListPackages(ctx context.Context) ([]model.Package, error)
	CreatePackage(ctx context.Context, p model.Package) (int64, error)
	UpdatePackage(ctx context.Context, p model.Package) error
	DeletePackage(ctx context.Context, id int64) error

	ListMembers(ctx context.Context, limit, offset int) ([]service.MemberView, error)
	SetBlacklisted(ctx context.Context, memberID int64, blacklisted bool) error
	ListPayments(ctx context.Context, memberID *int64, limit, offset int) ([]model.Payment, error)
}

// Handler реализует HTTP-обработчики API библиотечного сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. rl может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, rl *middleware.RateLimiter) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		rateLimiter:    rl,
	}
}

var errInvalidJSON = errors.New("invalid json body")

// errorMapping сопоставляет доменные ошибки HTTP-статусам и сообщениям для клиента.
var errorMapping = []struct {
	err    error
	status int
	msg    string
}{
	{holds.ErrMemberRequired, http.StatusUnauthorized, "Authentication required"},
	{holds.ErrInvalidBookID, http.StatusBadRequest, "Invalid book id"},
	{validation.ErrInvalidID, http.StatusBadRequest, "Invalid id"},
	{errInvalidJSON, http.StatusBadRequest, "Invalid JSON body"},
	{repository.ErrBookNotFound, http.StatusNotFound, "Book not found"},
	{repository.ErrHoldNotFound, http.StatusNotFound, "Hold not found"},
	{repository.ErrLoanNotFound, http.StatusNotFound, "Loan not found"},
	{repository.ErrMemberNotFound, http.StatusNotFound, "Member not found"},
	{repository.ErrStaffNotFound, http.StatusNotFound, "Staff not found"},
	{repository.ErrNotFound, http.StatusNotFound, "Not found"},
	{repository.ErrBookUnavailable, http.StatusBadRequest, "Book is not available for this operation"},
	{repository.ErrLoanExists, http.StatusBadRequest, "Book is already borrowed by this member"},
	{repository.ErrInvalidReference, http.StatusBadRequest, "Referenced record does not exist"},
	{repository.ErrMemberExists, http.StatusConflict, "Email is already registered"},
	{repository.ErrStaffExists, http.StatusConflict, "Email is already registered"},
	{repository.ErrConflict, http.StatusConflict, "Record already exists"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{service.ErrMemberBlacklisted, http.StatusForbidden, "Member is blacklisted"},
	{service.ErrInvalidISBN, http.StatusBadRequest, "Invalid ISBN"},
	{service.ErrImportUnavailable, http.StatusServiceUnavailable, "ISBN import is not available"},
	{openlibrary.ErrNotFound, http.StatusNotFound, "ISBN not found in Open Library"},
	{openlibrary.ErrRateLimited, http.StatusServiceUnavailable, "Open Library is rate limiting requests, try again later"},
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeFailure(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeError переводит ошибку в ответ {success:false, error}. Неизвестные ошибки журналируются как 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var contention *holds.ContentionError
	if errors.As(err, &contention) {
		h.writeFailure(w, http.StatusBadRequest, contention.Error())
		return
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		h.writeFailure(w, http.StatusBadRequest, verrs.Error())
		return
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			h.writeFailure(w, m.status, m.msg)
			return
		}
	}

	h.logger.Error(op+" error",
		zap.Error(err),
		zap.String("requestID", middleware.RequestIDFromContext(r.Context())),
	)
	h.writeFailure(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// decodeJSON читает тело запроса в v и проверяет его теги validate. Пустое тело допускается.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidJSON
	}
	return validation.Struct(v)
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Signup регистрирует читателя и открывает для него сессию.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "signup")
		return
	}

	memberID, err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, "signup")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, memberID, middleware.RoleMember); err != nil {
		h.writeError(w, r, err, "signup")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"member_id": memberID})
}

// Login выполняет аутентификацию читателя и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "login")
		return
	}

	memberID, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, "login")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, memberID, middleware.RoleMember); err != nil {
		h.writeError(w, r, err, "login")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"member_id": memberID})
}

// StaffLogin выполняет аутентификацию сотрудника.
func (h *Handler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "staff login")
		return
	}

	st, err := h.service.StaffLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, "staff login")
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, st.ID, string(st.Role)); err != nil {
		h.writeError(w, r, err, "staff login")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"staff_id": st.ID, "role": st.Role})
}

// Logout закрывает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	h.writeSuccess(w, http.StatusOK, nil)
}
