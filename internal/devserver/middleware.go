package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/devserver/auth"
	"github.com/dmitrijs2005/narrate/internal/devserver/users"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const userKey ctxKey = "user"

func userFromContext(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// requestLogger logs one line per request through the server logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// csrfProtect rejects state-changing requests whose CSRF header does not
// match the secret cookie issued by /csrf-token.
func (s *Server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		var secret string
		if c, err := r.Cookie(common.CSRFCookieName); err == nil {
			secret = c.Value
		}
		if !auth.ValidCSRF(s.secret, secret, r.Header.Get(common.CSRFHeaderName)) {
			s.writeError(w, r, common.ErrInvalidCSRF)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser resolves the access token cookie and puts the user in the
// request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(common.AccessTokenCookieName)
		if err != nil || c.Value == "" {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		user, err := s.users.Authenticate(r.Context(), c.Value)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}
