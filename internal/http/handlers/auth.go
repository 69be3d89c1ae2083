package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-frontdesk/internal/http/middleware"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/internal/staffauth"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// StaffLogin exchanges credentials for a staff session.
type StaffLogin interface {
	Login(ctx context.Context, username, password string) (*staffauth.Session, error)
}

// AuthHandler serves staff login, logout and session checks.
type AuthHandler struct {
	auth         StaffLogin
	secureCookie bool
	logger       *logging.Logger
}

// NewAuthHandler creates the staff auth handler. secureCookie marks the
// session cookie Secure, which browsers require outside localhost.
func NewAuthHandler(auth StaffLogin, secureCookie bool, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{auth: auth, secureCookie: secureCookie, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/login/staff.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(r, &body); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	session, err := h.auth.Login(r.Context(), body.Username, body.Password)
	if errors.Is(err, staffauth.ErrInvalidCredentials) || errors.Is(err, staffauth.ErrDisabled) {
		respond.Message(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	staffauth.SetCookie(w, session, h.secureCookie)
	respond.JSON(w, http.StatusOK, session)
}

// Logout handles POST /api/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	staffauth.ClearCookie(w, h.secureCookie)
	respond.JSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// Verify handles GET /api/auth/verify behind the staff middleware.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.StaffUserFromContext(r.Context())
	if !ok {
		respond.Message(w, http.StatusForbidden, respond.MessageForbidden)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"username": user})
}
