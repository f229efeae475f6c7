package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/medtrain/internal/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/http/account"
	authhttp "github.com/MrJamesThe3rd/medtrain/internal/http/auth"
	"github.com/MrJamesThe3rd/medtrain/internal/http/booking"
	"github.com/MrJamesThe3rd/medtrain/internal/http/catalogue"
	"github.com/MrJamesThe3rd/medtrain/internal/http/export"
	"github.com/MrJamesThe3rd/medtrain/internal/http/guard"
)

type Options struct {
	AllowedOrigins []string
	Timeout        time.Duration
}

func New(
	opts Options,
	sessions guard.Authenticator,
	authV1 *authhttp.Handler,
	catalogueV1 *catalogue.Handler,
	bookingsV1 *booking.Handler,
	accountsV1 *account.Handler,
	exportV1 *export.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Heartbeat("/healthz"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	authn := guard.Authenticate(sessions)
	admin := func(next http.Handler) http.Handler {
		return authn(guard.RequireRole(auth.RoleAdmin)(next))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			authV1.Routes(r, authn)
		})

		r.Route("/courses", func(r chi.Router) {
			r.Use(guard.Identify(sessions))
			catalogueV1.Routes(r, admin)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(admin)
			catalogueV1.ImportRoutes(r)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Use(authn)
			bookingsV1.Routes(r, guard.RequireRole(auth.RoleAdmin))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Use(admin)
			r.Use(middleware.AllowContentType("application/json"))
			accountsV1.Routes(r)
		})

		r.Route("/export", func(r chi.Router) {
			r.Use(admin)
			r.Use(middleware.AllowContentType("application/json"))
			exportV1.Routes(r)
		})
	})

	return router
}
