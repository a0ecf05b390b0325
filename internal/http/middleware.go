package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	applog "fatture/internal/log"
	"fatture/internal/session"
)

const sessionCookie = "fatture_session"

type requestIDKey struct{}

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// withRequestID reuses a well-formed incoming X-Request-ID or generates one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(id) {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFromRequest(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// responseWriter captures the status code for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		logger := applog.NewStructuredLogger(applog.FromContext(r.Context()))

		if reason := detectSuspiciousRequest(r, s.metrics); reason != "" {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"reason", reason)
		}

		logger.LogHTTPStart(r.Context(), r, clientIP)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; form-action 'self' https://accounts.google.com")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.deps.CookieSecure {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit limits state-changing requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := extractClientIP(r)
		if !s.rateLimiter.allow(clientIP, s.metrics) {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			retry := s.rateLimiter.retryAfter(clientIP)
			ErrorResponse(http.StatusTooManyRequests, "Too many requests, try again in a minute").
				Header("Retry-After", strconv.Itoa(max(retry, 1))).
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession resolves the session cookie and stores the session in the
// request context; anonymous requests are sent to the login page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			s.unauthenticated(w, r)
			return
		}

		sess, err := s.deps.Sessions.Lookup(r.Context(), c.Value)
		switch {
		case err == nil:
			ctx := session.NewContext(r.Context(), &sess)
			logger := applog.FromContext(ctx).With(applog.FieldUserID, sess.UserID)
			next.ServeHTTP(w, r.WithContext(applog.NewContext(ctx, logger)))
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			atomic.AddInt64(&s.metrics.rejectedSessions, 1)
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSession).DebugContext(r.Context(), "Session rejected", "reason", err)
			s.clearSessionCookie(w)
			s.unauthenticated(w, r)
		default:
			s.structured.LogError(r.Context(), "Session lookup failed", err, applog.ErrorTypeDatabase, applog.OpLoad, nil)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		}
	})
}

func (s *Server) unauthenticated(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: "not signed in"})
	case r.Header.Get("HX-Request") == "true":
		NewHTMXResponse().Status(http.StatusUnauthorized).Redirect("/login").Write(w)
	default:
		target := "/login"
		if r.URL.Path != "/" {
			target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// currentSession returns the session stored by requireSession.
func currentSession(r *http.Request) session.AuthSession {
	if s, ok := session.FromContext(r.Context()); ok {
		return *s
	}
	return session.AuthSession{}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess session.AuthSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
