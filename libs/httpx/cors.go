package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call the API. An origin is
// an exact value such as https://book.example.com, a subdomain pattern such
// as https://*.example.com, or "*".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers preflight requests and tags responses for allowed
// origins. It is a no-op without AllowedOrigins.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := newOriginSet(cfg.AllowedOrigins)
	if origins.empty() {
		return func(next http.Handler) http.Handler { return next }
	}

	static := http.Header{}
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if v := joinList(cfg.AllowedMethods); v != "" {
		static.Set("Access-Control-Allow-Methods", v)
	}
	if v := joinList(cfg.AllowedHeaders); v != "" {
		static.Set("Access-Control-Allow-Headers", v)
	}
	if v := joinList(cfg.ExposedHeaders); v != "" {
		static.Set("Access-Control-Expose-Headers", v)
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !origins.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			headers := w.Header()
			if origins.any && !cfg.AllowCredentials {
				headers.Set("Access-Control-Allow-Origin", "*")
			} else {
				headers.Set("Access-Control-Allow-Origin", origin)
			}
			for k, v := range static {
				headers[k] = v
			}
			headers.Add("Vary", "Origin")
			headers.Add("Vary", "Access-Control-Request-Method")
			headers.Add("Vary", "Access-Control-Request-Headers")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type originSet struct {
	any   bool
	exact map[string]struct{}
	// subdomain patterns split around the "*."
	wildcards []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string // "https://"
	domain string // ".example.com"
}

func newOriginSet(values []string) originSet {
	set := originSet{exact: map[string]struct{}{}}
	for _, v := range values {
		v = strings.ToLower(strings.TrimRight(strings.TrimSpace(v), "/"))
		switch {
		case v == "":
		case v == "*":
			set.any = true
		case strings.Contains(v, "://*."):
			scheme, domain, _ := strings.Cut(v, "*")
			set.wildcards = append(set.wildcards, wildcardOrigin{scheme: scheme, domain: domain})
		default:
			set.exact[v] = struct{}{}
		}
	}
	return set
}

func (s originSet) empty() bool {
	return !s.any && len(s.exact) == 0 && len(s.wildcards) == 0
}

func (s originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := s.exact[origin]; ok {
		return true
	}
	for _, w := range s.wildcards {
		host, ok := strings.CutPrefix(origin, w.scheme)
		if ok && strings.HasSuffix(host, w.domain) && len(host) > len(w.domain) {
			return true
		}
	}
	return false
}

func joinList(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
