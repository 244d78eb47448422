package handler

import (
	"net/http"

	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
)

// SessionHandler handles moderator login
type SessionHandler struct {
	authService *auth.Service
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(authService *auth.Service) *SessionHandler {
	return &SessionHandler{authService: authService}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.Login(r.Context(), model.MemberID(req.MemberID), req.Key)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.SessionFromAuth(session))
}
