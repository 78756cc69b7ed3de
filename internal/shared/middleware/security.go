package middleware

import (
	"net"
	"net/http"
	"strings"
)

// HSTS enforces HTTPS for a year, including subdomains.
func HSTS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// NoStore keeps session tokens and bank data out of shared caches.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// SecureCookies adds Secure, HttpOnly and SameSite to every cookie the
// handler sets.
func SecureCookies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&secureCookieWriter{ResponseWriter: w}, r)
	})
}

type secureCookieWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *secureCookieWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *secureCookieWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.ResponseWriter.Header()
	if cookies := h.Values("Set-Cookie"); len(cookies) > 0 {
		secured := make([]string, len(cookies))
		for i, c := range cookies {
			secured[i] = ensureSecureCookie(c)
		}
		h["Set-Cookie"] = secured
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func ensureSecureCookie(cookie string) string {
	parts := strings.Split(cookie, ";")
	var secure, httpOnly, sameSite bool

	for i, p := range parts {
		p = strings.TrimSpace(p)
		lower := strings.ToLower(p)
		switch {
		case lower == "secure":
			secure = true
		case lower == "httponly":
			httpOnly = true
		case strings.HasPrefix(lower, "samesite"):
			sameSite = true
		}
		parts[i] = p
	}

	if !secure {
		parts = append(parts, "Secure")
	}
	if !httpOnly {
		parts = append(parts, "HttpOnly")
	}
	if !sameSite {
		parts = append(parts, "SameSite=Strict")
	}
	return strings.Join(parts, "; ")
}

// RedirectHTTPS answers plain HTTP requests with a permanent redirect to
// the HTTPS URL. Hosts outside allowedHosts are refused so the Host header
// cannot steer the redirect elsewhere.
func RedirectHTTPS(allowedHosts []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsHostAllowed(r.Host, allowedHosts) {
			http.Error(w, "invalid host", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}

// IsHostAllowed reports whether host matches one of allowedHosts, with or
// without port. An empty list allows everything.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	host = strings.ToLower(strings.TrimSpace(host))
	hostname := hostOnly(host)

	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || hostname == hostOnly(allowed) {
			return true
		}
	}
	return false
}

// hostOnly drops the port from host:port and the brackets around a bare
// IPv6 literal.
func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}
