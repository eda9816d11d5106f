package handler

import (
	"context"
	"net/http"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/service"
)

type bookRequest struct {
	Title      string `json:"title" validate:"required,max=500"`
	ISBN       string `json:"isbn" validate:"omitempty,isbn"`
	AuthorID   *int64 `json:"author_id" validate:"omitempty,gt=0"`
	CategoryID *int64 `json:"category_id" validate:"omitempty,gt=0"`
	BranchID   *int64 `json:"branch_id" validate:"omitempty,gt=0"`
	Format     string `json:"format" validate:"omitempty,oneof=physical digital"`
}

func (req bookRequest) book() model.Book {
	return model.Book{
		Title:      req.Title,
		ISBN:       req.ISBN,
		AuthorID:   req.AuthorID,
		CategoryID: req.CategoryID,
		BranchID:   req.BranchID,
		Format:     model.BookFormat(req.Format),
	}
}

// CreateBook добавляет экземпляр в каталог.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create book")
		return
	}

	book, err := h.service.CreateBook(r.Context(), req.book())
	if err != nil {
		h.writeError(w, r, err, "create book")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"book": book})
}

// UpdateBook обновляет описание экземпляра.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update book")
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update book")
		return
	}

	b := req.book()
	b.ID = id

	book, err := h.service.UpdateBook(r.Context(), b)
	if err != nil {
		h.writeError(w, r, err, "update book")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"book": book})
}

type lostRequest struct {
	Lost bool `json:"lost"`
}

// SetBookLost помечает экземпляр утерянным или найденным.
func (h *Handler) SetBookLost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "set book lost")
		return
	}

	var req lostRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "set book lost")
		return
	}

	if err := h.service.SetBookLost(r.Context(), id, req.Lost); err != nil {
		h.writeError(w, r, err, "set book lost")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"book_id": id, "lost": req.Lost})
}

// DeleteBook удаляет экземпляр.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete book", h.service.DeleteBook)
}

type importRequest struct {
	ISBN     string `json:"isbn" validate:"required,isbn"`
	BranchID *int64 `json:"branch_id" validate:"omitempty,gt=0"`
	Format   string `json:"format" validate:"omitempty,oneof=physical digital"`
}

// ImportBook создаёт экземпляр по ISBN с метаданными из Open Library.
func (h *Handler) ImportBook(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "import book")
		return
	}

	book, err := h.service.ImportByISBN(r.Context(), req.ISBN, req.BranchID, model.BookFormat(req.Format))
	if err != nil {
		h.writeError(w, r, err, "import book")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"book": book})
}

type authorRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Bio  string `json:"bio"`
}

// CreateAuthor добавляет автора.
func (h *Handler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req authorRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create author")
		return
	}

	id, err := h.service.CreateAuthor(r.Context(), model.Author{Name: req.Name, Bio: req.Bio})
	if err != nil {
		h.writeError(w, r, err, "create author")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateAuthor обновляет автора.
func (h *Handler) UpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update author")
		return
	}

	var req authorRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update author")
		return
	}

	if err := h.service.UpdateAuthor(r.Context(), model.Author{ID: id, Name: req.Name, Bio: req.Bio}); err != nil {
		h.writeError(w, r, err, "update author")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteAuthor удаляет автора.
func (h *Handler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete author", h.service.DeleteAuthor)
}

type nameRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address"`
}

// CreateCategory добавляет рубрику.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create category")
		return
	}

	id, err := h.service.CreateCategory(r.Context(), model.Category{Name: req.Name})
	if err != nil {
		h.writeError(w, r, err, "create category")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateCategory переименовывает рубрику.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update category")
		return
	}

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update category")
		return
	}

	if err := h.service.UpdateCategory(r.Context(), model.Category{ID: id, Name: req.Name}); err != nil {
		h.writeError(w, r, err, "update category")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteCategory удаляет рубрику.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete category", h.service.DeleteCategory)
}

// CreateBranch добавляет филиал.
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create branch")
		return
	}

	id, err := h.service.CreateBranch(r.Context(), model.Branch{Name: req.Name, Address: req.Address})
	if err != nil {
		h.writeError(w, r, err, "create branch")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateBranch обновляет филиал.
func (h *Handler) UpdateBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update branch")
		return
	}

	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update branch")
		return
	}

	if err := h.service.UpdateBranch(r.Context(), model.Branch{ID: id, Name: req.Name, Address: req.Address}); err != nil {
		h.writeError(w, r, err, "update branch")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteBranch удаляет филиал.
func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete branch", h.service.DeleteBranch)
}

type staffRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=librarian admin"`
	BranchID *int64 `json:"branch_id" validate:"omitempty,gt=0"`
}

type staffUpdateRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Role     string `json:"role" validate:"required,oneof=librarian admin"`
	BranchID *int64 `json:"branch_id" validate:"omitempty,gt=0"`
}

// ListStaff возвращает сотрудников.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.service.ListStaff(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list staff")
		return
	}
	if staff == nil {
		staff = []model.Staff{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"staff": staff})
}

// CreateStaff создаёт сотрудника.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create staff")
		return
	}

	st := model.Staff{Name: req.Name, Email: req.Email, Role: model.StaffRole(req.Role), BranchID: req.BranchID}
	id, err := h.service.CreateStaff(r.Context(), st, req.Password)
	if err != nil {
		h.writeError(w, r, err, "create staff")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateStaff обновляет сотрудника.
func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update staff")
		return
	}

	var req staffUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update staff")
		return
	}

	st := model.Staff{ID: id, Name: req.Name, Role: model.StaffRole(req.Role), BranchID: req.BranchID}
	if err := h.service.UpdateStaff(r.Context(), st); err != nil {
		h.writeError(w, r, err, "update staff")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteStaff удаляет сотрудника.
func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete staff", h.service.DeleteStaff)
}

type packageRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
	PriceCents   int64  `json:"price_cents" validate:"min=0"`
}

func (req packageRequest) pkg() model.Package {
	return model.Package{Name: req.Name, DurationDays: req.DurationDays, PriceCents: req.PriceCents}
}

// CreatePackage добавляет тариф.
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "create package")
		return
	}

	id, err := h.service.CreatePackage(r.Context(), req.pkg())
	if err != nil {
		h.writeError(w, r, err, "create package")
		return
	}
	h.writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdatePackage обновляет тариф.
func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "update package")
		return
	}

	var req packageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "update package")
		return
	}

	p := req.pkg()
	p.ID = id
	if err := h.service.UpdatePackage(r.Context(), p); err != nil {
		h.writeError(w, r, err, "update package")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// DeletePackage удаляет тариф.
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete package", h.service.DeletePackage)
}

// ListMembers возвращает страницу читателей.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err, "list members")
		return
	}

	members, err := h.service.ListMembers(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err, "list members")
		return
	}
	if members == nil {
		members = []service.MemberView{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"members": members})
}

type blacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

// SetBlacklisted ставит или снимает блокировку читателя.
func (h *Handler) SetBlacklisted(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "set blacklisted")
		return
	}

	var req blacklistRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "set blacklisted")
		return
	}

	if err := h.service.SetBlacklisted(r.Context(), id, req.Blacklisted); err != nil {
		h.writeError(w, r, err, "set blacklisted")
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"member_id": id, "blacklisted": req.Blacklisted})
}

// ListPayments возвращает журнал оплат, при ?member_id только одного читателя.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	memberID, err := optionalID(q, "member_id")
	if err != nil {
		h.writeError(w, r, err, "list payments")
		return
	}
	limit, offset, err := paging(q)
	if err != nil {
		h.writeError(w, r, err, "list payments")
		return
	}

	payments, err := h.service.ListPayments(r.Context(), memberID, limit, offset)
	if err != nil {
		h.writeError(w, r, err, "list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) deleteByID(w http.ResponseWriter, r *http.Request, op string, del func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, op)
		return
	}

	if err := del(r.Context(), id); err != nil {
		h.writeError(w, r, err, op)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}
