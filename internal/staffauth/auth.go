// Package staffauth authenticates clinic staff against a configured bcrypt hash.
package staffauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// CookieName carries the staff token for the browser UI.
const CookieName = "staff_token"

var (
	ErrInvalidCredentials = errors.New("staffauth: invalid credentials")
	ErrDisabled           = errors.New("staffauth: login not configured")
)

// Session is a successful login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator checks credentials and issues staff tokens.
type Authenticator struct {
	username string
	hash     []byte
	signer   *tokens.Signer
	logger   *logging.Logger
}

// New creates an authenticator. An empty hash disables login.
func New(username, passwordHash string, signer *tokens.Signer, logger *logging.Logger) *Authenticator {
	if signer == nil {
		panic("staffauth: token signer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Authenticator{
		username: strings.TrimSpace(username),
		hash:     []byte(passwordHash),
		signer:   signer,
		logger:   logger,
	}
}

// HashPassword produces a hash suitable for STAFF_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("staffauth: hash password: %w", err)
	}
	return string(h), nil
}

// Login verifies username and password and returns a signed session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	if len(a.hash) == 0 || a.username == "" {
		return nil, ErrDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		a.logger.Warn("staff login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}
	token, exp, err := a.signer.Issue(a.username)
	if errors.Is(err, tokens.ErrNoSecret) {
		return nil, ErrDisabled
	}
	if err != nil {
		return nil, err
	}
	a.logger.Info("staff login", "username", a.username)
	return &Session{Token: token, Username: a.username, ExpiresAt: exp}, nil
}

// Verify checks a staff token and returns the username it was issued to.
func (a *Authenticator) Verify(raw string) (string, error) {
	claims, err := a.signer.Verify(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// TokenFromRequest reads the bearer header, then the session cookie.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetCookie stores the session token for the browser.
func SetCookie(w http.ResponseWriter, s *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
