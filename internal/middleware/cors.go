package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders  = "Content-Type, Accept-Language, X-Locale, X-Request-ID"
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsExposeHeaders = "X-Request-ID, Retry-After"
	corsMaxAge        = "600"
)

type originPolicy struct {
	exact    map[string]bool
	suffixes []string // from entries like "https://*.example.com"
	any      bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]bool{}}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		case o != "":
			p.exact[o] = true
		}
	}
	return p
}

// match reports whether origin is allowed and whether it was named
// explicitly. Only named origins get credentials.
func (p originPolicy) match(origin string) (allowed, named bool) {
	if p.exact[origin] {
		return true, true
	}
	for _, s := range p.suffixes {
		scheme, host, _ := strings.Cut(s, "|")
		if rest, ok := strings.CutPrefix(origin, scheme); ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true, true
		}
	}
	return p.any, false
}

// CORS answers preflight requests and sets allow headers for permitted
// origins. A "*" entry allows every origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" {
				if allowed, named := policy.match(origin); allowed {
					if named {
						h.Set("Access-Control-Allow-Origin", origin)
						h.Set("Access-Control-Allow-Credentials", "true")
					} else {
						h.Set("Access-Control-Allow-Origin", "*")
					}
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
