package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"fatture/internal/api"
	"fatture/internal/core"
	applog "fatture/internal/log"
)

const stateCookie = "oauth_state"

type loginView struct {
	page
	Email string
	Next  string
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", loginView{
		page: s.page(r, "Sign in", "login"),
		Next: safeRedirect(r.URL.Query().Get("next")),
	})
}

// handleLogin accepts the login form or a JSON body with email and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Malformed request").Write(w)
		return
	}
	email := p.Get("email")
	next := safeRedirect(p.Get("next"))
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentSession)

	sess, err := s.deps.Auth.Login(r.Context(), email, p.GetRaw("password"))
	if err != nil {
		status, msg := loginFailure(err)
		logger.WarnContext(r.Context(), "Login failed",
			applog.FieldError, err, applog.FieldOperation, applog.OpLogin, "status", status)
		if p.IsJSON() {
			writeJSON(w, status, errorJSON{Error: msg})
			return
		}
		s.render(w, r, status, "login.html", loginView{
			page:  s.page(r, "Sign in", "login"),
			Email: email,
			Next:  next,
			Error: msg,
		})
		return
	}

	s.setSessionCookie(w, sess)
	if p.IsJSON() {
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":    sess.UserID,
			"username":   sess.Username,
			"expires_at": sess.ExpiresAt,
		})
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Redirect(next).Write(w)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func loginFailure(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "Enter your email and password"
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized, "Wrong email or password"
	case errors.Is(err, api.ErrEmptyToken):
		return http.StatusBadGateway, "The invoicing service did not issue a session"
	}
	status, _, msg := classify(err)
	if status < http.StatusInternalServerError {
		return http.StatusUnauthorized, "Sign-in failed"
	}
	return status, msg
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.NotFound(w, r)
		return
	}
	state, err := randomHex(16)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to generate OAuth state", err, applog.ErrorTypeInternal, applog.OpLogin, nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.deps.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.deps.Google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.NotFound(w, r)
		return
	}
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentSession)
	q := r.URL.Query()
	loginErr := func(status int, msg string) {
		s.render(w, r, status, "login.html", loginView{page: s.page(r, "Sign in", "login"), Next: "/dashboard", Error: msg})
	}

	if e := q.Get("error"); e != "" {
		logger.InfoContext(r.Context(), "Google sign-in cancelled", "reason", e)
		loginErr(http.StatusUnauthorized, "Google sign-in was cancelled")
		return
	}

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		logger.WarnContext(r.Context(), "OAuth state mismatch", applog.FieldClientIP, extractClientIP(r))
		loginErr(http.StatusBadRequest, "Sign-in expired, try again")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/google", MaxAge: -1, HttpOnly: true, Secure: s.deps.CookieSecure})

	idToken, err := s.deps.Google.IDToken(r.Context(), q.Get("code"))
	if err != nil {
		s.structured.LogError(r.Context(), "Google code exchange failed", err, applog.ErrorTypeNetwork, applog.OpLogin, nil)
		loginErr(http.StatusBadGateway, "Google sign-in failed")
		return
	}

	sess, err := s.deps.Auth.LoginWithGoogle(r.Context(), idToken)
	if err != nil {
		status, msg := loginFailure(err)
		logger.WarnContext(r.Context(), "Google login rejected", applog.FieldError, err, applog.FieldOperation, applog.OpLogin)
		loginErr(status, msg)
		return
	}
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.deps.Auth.Logout(r.Context(), sess.ID); err != nil {
		s.structured.LogError(r.Context(), "Logout failed", err, applog.ErrorTypeDatabase, applog.OpLogout, nil)
	}
	s.clearSessionCookie(w)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentSession).InfoContext(r.Context(), "User signed out",
		applog.FieldOperation, applog.OpLogout)
	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
