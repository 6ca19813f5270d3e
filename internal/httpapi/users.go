package httpapi

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/safar/storefront/internal/apperr"
)

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), identityFromContext(r.Context()).UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}

// updateMe edits the caller's name and email. Omitted fields are left as is.
func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" && req.Email == "" {
		h.respondError(w, r, apperr.Validation("name or email is required"))
		return
	}
	if req.Email != "" {
		addr, err := mail.ParseAddress(req.Email)
		if err != nil || addr.Address != req.Email {
			h.respondError(w, r, apperr.Validation("invalid email"))
			return
		}
	}

	user, err := h.store.UpdateUser(r.Context(), identityFromContext(r.Context()).UserID, req.Name, req.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}
