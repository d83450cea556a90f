package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"vansales/internal/core"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// userFrom returns the authenticated user. Only valid behind requireUser.
func userFrom(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey).(core.User)
	return u
}

// requestLogger logs one line per request once the route is known.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		sl := applog.NewStructuredLogger(applog.FromContext(r.Context()))
		sl.LogHTTPEnd(r.Context(), r, metrics.RoutePattern(r), status, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

// rateLimit throttles requests per client address.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return extractClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeJSONProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}),
	)
}

// requireUser rejects requests without a valid session token.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSONProblem(w, r, http.StatusUnauthorized, "login required")
			return
		}
		u, err := s.tokens.Verify(r.Context(), token)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		ctx := withUser(r.Context(), u)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUser, u.Username, applog.FieldRole, string(u.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run behind requireUser.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r.Context()).IsAdmin() {
			writeProblem(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
