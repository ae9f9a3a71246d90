// Package devserver is a local stand-in for the Narrate backend. It serves
// the REST API the client talks to, with cookie-carried JWTs, CSRF
// protection, in-memory accounts and sign-up codes written to the log.
package devserver

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
	"github.com/dmitrijs2005/narrate/internal/devserver/config"
	"github.com/dmitrijs2005/narrate/internal/devserver/refreshtokens"
	"github.com/dmitrijs2005/narrate/internal/devserver/users"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

const (
	userRoutePrefix  = "/api/v1/user"
	maxImageSize     = 5 << 20
	maxSearchPerPage = 50
)

// Server holds the HTTP handlers of the development backend.
type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	users    *users.Service
	images   *imageStore
	validate *validator.Validate
	secret   []byte
}

// NewServer builds a Server with empty in-memory storage.
func NewServer(cfg *config.Config, logger logging.Logger) *Server {
	svc := users.NewService(users.NewMemoryRepository(), refreshtokens.NewMemoryRepository(), cfg, logger)
	return newServer(cfg, logger, svc)
}

func newServer(cfg *config.Config, logger logging.Logger, svc *users.Service) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		cfg:      cfg,
		logger:   logger.With("component", "devserver"),
		users:    svc,
		images:   newImageStore(),
		validate: v,
		secret:   []byte(cfg.SecretKey),
	}
}

// Routes returns the router serving the whole API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.CSRFHeaderName, common.RequestIDHeaderName},
		ExposedHeaders:   []string{common.RequestIDHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/csrf-token", s.handleCSRFToken)
	r.Get("/images/{id}", s.handleImage)

	r.Route(userRoutePrefix, func(r chi.Router) {
		r.Use(s.csrfProtect)

		r.Post("/sign-in", s.handleSignIn)
		r.Post("/sign-up", s.handleSignUp)
		r.Get("/check-username/{username}", s.handleCheckUsername)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Patch("/refresh-otp", s.handleRefreshOTP)
		r.Get("/refresh-token", s.handleRefreshToken)
		r.Delete("/sign-out", s.handleSignOut)
		r.Get("/search", s.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/session", s.handleSession)
			r.Patch("/profile-image", s.handleProfileImage)
			r.Patch("/profile-info", s.handleProfileInfo)
		})
	})

	return r
}

// setTokenCookies stores the pair on the client. The access cookie outlives
// its JWT so that an expired token still reaches the server and is answered
// with "token expired" instead of plain "unauthorized".
func (s *Server) setTokenCookies(w http.ResponseWriter, pair *users.TokenPair) {
	maxAge := int(s.cfg.RefreshTokenValidityDuration / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     common.AccessTokenCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     userRoutePrefix,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTokenCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{common.AccessTokenCookieName, "/"},
		{common.RefreshTokenCookieName, userRoutePrefix},
		{common.CSRFCookieName, "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Value: "", Path: c.path, MaxAge: -1, HttpOnly: true})
	}
}
