package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
	corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsExposedHeaders = "Retry-After, X-Request-ID"
	corsMaxAge         = "600"
)

var corsMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodDelete: {}, http.MethodOptions: {},
}

type originPolicy struct {
	exact    map[string]struct{}
	schemes  []string // "https://" for "https://*.clinic.example"
	suffixes []string // ".clinic.example" for the same entry
	allowAny bool
}

func parseOrigins(origins []string) originPolicy {
	p := originPolicy{exact: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			p.allowAny = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.schemes = append(p.schemes, scheme+"://")
			p.suffixes = append(p.suffixes, host)
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

// match reports whether origin may call the API, and whether it may do so
// with the staff session cookie. Only named origins get credentials.
func (p originPolicy) match(origin string) (allowed, credentials bool) {
	if _, ok := p.exact[origin]; ok {
		return true, true
	}
	for i, suffix := range p.suffixes {
		if strings.HasPrefix(origin, p.schemes[i]) && strings.HasSuffix(origin, suffix) &&
			len(origin) > len(p.schemes[i])+len(suffix) {
			return true, true
		}
	}
	return p.allowAny, false
}

// CORS applies an origin allowlist. Entries are exact origins, subdomain
// patterns such as "https://*.clinic.example", or "*" to admit any origin
// without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			allowed, credentials := policy.match(origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !allowed {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := corsMethods[strings.ToUpper(r.Header.Get("Access-Control-Request-Method"))]; !ok {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
