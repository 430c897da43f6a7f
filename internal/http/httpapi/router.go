package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fundingledger/internal/domain"
	"fundingledger/internal/http/handlers"
	"fundingledger/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Locale", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.I18N(opts.DefaultLocale),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())

	r.Route("/v1/needs", func(r chi.Router) {
		r.Get("/", app.NeedsList)
		r.With(middleware.AuthJWT(opts.JWTSecret), middleware.RequireRole(domain.RoleRecipient)).Get("/mine", app.NeedsMine)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.NeedGet)
			r.Get("/donations", app.NeedDonations)
		})
	})

	r.Route("/v1/donations", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.With(middleware.RequireRole(domain.RoleDonor)).Post("/", app.DonationsCreate)
		r.With(middleware.RequireRole(domain.RoleAdmin)).Get("/", app.DonationsList)
		r.With(middleware.RequireRole(domain.RoleDonor)).Get("/my", app.DonationsMine)
		r.Get("/{id}", app.DonationGet)
		r.Patch("/{id}/confirm", app.DonationConfirm)
		r.With(middleware.RequireRole(domain.RoleAdmin)).Patch("/{id}/fail", app.DonationFail)
		r.With(middleware.RequireRole(domain.RoleAdmin)).Delete("/{id}", app.DonationDelete)
	})

	return r
}
