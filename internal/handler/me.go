package handler

import (
	"net/http"

	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/model"
)

// Profile возвращает личный кабинет текущего читателя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, holds.ErrMemberRequired, "profile")
		return
	}

	p, err := h.service.Profile(r.Context(), memberID)
	if err != nil {
		h.writeError(w, r, err, "profile")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"member":            p.Member,
		"membership_status": p.Membership,
		"loans":             p.Loans,
		"holds":             p.Holds,
	})
}

// LoanHistory возвращает все выдачи текущего читателя.
func (h *Handler) LoanHistory(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, holds.ErrMemberRequired, "loan history")
		return
	}

	loans, err := h.service.LoanHistory(r.Context(), memberID)
	if err != nil {
		h.writeError(w, r, err, "loan history")
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{"loans": loans})
}

type renewRequest struct {
	PackageID int64 `json:"package_id" validate:"required,gt=0"`
}

// Renew продлевает абонемент текущего читателя по выбранному тарифу.
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	memberID, ok := middleware.GetMemberIDFromContext(r.Context())
	if !ok {
		h.writeError(w, r, holds.ErrMemberRequired, "renew")
		return
	}

	var req renewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err, "renew")
		return
	}

	member, payment, err := h.service.Renew(r.Context(), memberID, req.PackageID)
	if err != nil {
		h.writeError(w, r, err, "renew")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"membership_end": member.MembershipEnd,
		"payment":        payment,
		"message":        "Membership renewed",
	})
}
