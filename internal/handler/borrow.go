package handler

import (
	"net/http"

	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/validation"
)

type borrowRequest struct {
	BookID   int64  `json:"book_id"`
	MemberID *int64 `json:"member_id,omitempty"`
}

// memberFor определяет читателя: сначала по сессии, затем по member_id из тела запроса.
// Ноль означает, что читатель не определён.
func memberFor(r *http.Request, req borrowRequest) int64 {
	if id, ok := middleware.GetMemberIDFromContext(r.Context()); ok {
		return id
	}
	if req.MemberID != nil {
		return *req.MemberID
	}
	return 0
}

// RequestHold бронирует экземпляр для читателя.
func (h *Handler) RequestHold(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "request hold")
		return
	}

	res, err := h.service.RequestHold(r.Context(), req.BookID, memberFor(r, req))
	if err != nil {
		h.writeError(w, r, err, "request hold")
		return
	}

	body := map[string]any{
		"book_id": res.BookID,
		"message": res.Message,
	}
	if res.PickupDeadline != nil {
		body["pickup_deadline"] = res.PickupDeadline
	}
	if res.DueAt != nil {
		body["due_at"] = res.DueAt
	}
	h.writeSuccess(w, http.StatusOK, body)
}

// ListHolds возвращает живые брони, при ?book_id только по одному экземпляру.
func (h *Handler) ListHolds(w http.ResponseWriter, r *http.Request) {
	var bookID *int64
	if raw := r.URL.Query().Get("book_id"); raw != "" {
		id, err := validation.ParseID(raw)
		if err != nil {
			h.writeError(w, r, err, "list holds")
			return
		}
		bookID = &id
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"holds": h.service.ListHolds(r.Context(), bookID),
	})
}

// ConfirmPickup превращает бронь в выдачу.
func (h *Handler) ConfirmPickup(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "confirm pickup")
		return
	}

	loan, err := h.service.ConfirmPickup(r.Context(), req.BookID, memberFor(r, req))
	if err != nil {
		h.writeError(w, r, err, "confirm pickup")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"book_id": loan.BookID,
		"loan_id": loan.ID,
		"due_at":  loan.DueAt,
		"message": "Book picked up",
	})
}

// CancelHold снимает бронь.
func (h *Handler) CancelHold(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "cancel hold")
		return
	}

	if err := h.service.CancelHold(r.Context(), req.BookID, memberFor(r, req)); err != nil {
		h.writeError(w, r, err, "cancel hold")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"book_id": req.BookID,
		"message": "Hold cancelled",
	})
}

// ReturnLoan закрывает выдачу.
func (h *Handler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "return loan")
		return
	}

	loan, err := h.service.ReturnLoan(r.Context(), req.BookID, memberFor(r, req))
	if err != nil {
		h.writeError(w, r, err, "return loan")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"book_id":     loan.BookID,
		"returned_at": loan.ReturnedAt,
		"message":     "Book returned",
	})
}
