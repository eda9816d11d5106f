package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/validation"
)

func optionalID(q url.Values, key string) (*int64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := validation.ParseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func paging(q url.Values) (int, int, error) {
	var limit, offset int
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, validation.ErrInvalidID
		}
		limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, validation.ErrInvalidID
		}
		offset = v
	}
	return limit, offset, nil
}

func pathID(r *http.Request) (int64, error) {
	return validation.ParseID(chi.URLParam(r, "id"))
}

func parseBookFilter(q url.Values) (model.BookFilter, error) {
	f := model.BookFilter{
		Query:  q.Get("q"),
		Status: model.BookStatus(q.Get("status")),
		Format: model.BookFormat(q.Get("format")),
	}

	if f.Status != "" && !f.Status.Valid() {
		return f, validation.Errors{{Field: "status", Message: "status must be one of: available reserved borrowed lost"}}
	}
	if f.Format != "" && !f.Format.Valid() {
		return f, validation.Errors{{Field: "format", Message: "format must be one of: physical digital"}}
	}

	var err error
	if f.BranchID, err = optionalID(q, "branch_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = optionalID(q, "category_id"); err != nil {
		return f, err
	}
	if f.AuthorID, err = optionalID(q, "author_id"); err != nil {
		return f, err
	}
	if f.Limit, f.Offset, err = paging(q); err != nil {
		return f, err
	}
	return f, nil
}

// SearchBooks возвращает страницу каталога по фильтрам из строки запроса.
func (h *Handler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	f, err := parseBookFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err, "search books")
		return
	}

	books, err := h.service.SearchBooks(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err, "search books")
		return
	}
	if books == nil {
		books = []model.Book{}
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{"books": books})
}

// GetBook возвращает карточку экземпляра.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err, "get book")
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "get book")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{"book": book})
}

// ListAuthors возвращает авторов.
func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list authors")
		return
	}
	if authors == nil {
		authors = []model.Author{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"authors": authors})
}

// ListCategories возвращает рубрики.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list categories")
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"categories": categories})
}

// ListBranches возвращает филиалы.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.service.ListBranches(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list branches")
		return
	}
	if branches == nil {
		branches = []model.Branch{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"branches": branches})
}

// ListPackages возвращает тарифы абонементов.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListPackages(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list packages")
		return
	}
	if packages == nil {
		packages = []model.Package{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"packages": packages})
}
