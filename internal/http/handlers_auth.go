package http

import (
	"net/http"
	"time"

	"vansales/internal/core"
	applog "vansales/internal/log"
)

const sessionCookie = "vansales_session"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, err)
		return
	}
	ctx := r.Context()
	u, err := s.auth.Authenticate(ctx, sanitizeInput(req.Username), req.Password)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Login rejected",
			applog.FieldUser, req.Username,
			applog.FieldClientIP, extractClientIP(r))
		writeProblem(w, r, err)
		return
	}
	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
	applog.FromContext(ctx).InfoContext(ctx, "User logged in",
		applog.NewFields().WithUser(u.Username, string(u.Role)).WithOperation(applog.OpLogin).ToSlice()...)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.Revoke(r.Context(), bearerToken(r)); err != nil {
		writeProblem(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}
