package server

import "net/http"

const contentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; img-src 'self' data:; base-uri 'none'; form-action 'none'"

// secureHeaders sets the response hardening headers. HSTS is only sent in
// production, where the API is reached over TLS.
func (s *Server) secureHeaders(next http.Handler) http.Handler {
	production := s.Config.Production()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if production {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", contentSecurityPolicy)

		next.ServeHTTP(w, r)
	})
}
