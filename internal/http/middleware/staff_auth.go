package middleware

import (
	"context"
	"net/http"

	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/internal/staffauth"
)

type contextKey string

const staffUserKey contextKey = "staffUser"

// StaffVerifier checks a staff token and returns the username.
type StaffVerifier interface {
	Verify(raw string) (string, error)
}

// StaffAuth rejects requests without a valid staff token with 403.
// The token comes from the Authorization header or the session cookie.
func StaffAuth(v StaffVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := staffauth.TokenFromRequest(r)
			if raw == "" || v == nil {
				respond.Message(w, http.StatusForbidden, respond.MessageForbidden)
				return
			}
			user, err := v.Verify(raw)
			if err != nil {
				respond.Message(w, http.StatusForbidden, respond.MessageForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), staffUserKey, user)
			ctx = audit.WithActor(ctx, "staff:"+user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffUserFromContext returns the authenticated staff username if present.
func StaffUserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(staffUserKey).(string)
	return user, ok
}
