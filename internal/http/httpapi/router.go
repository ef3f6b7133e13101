package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"creativeflow/internal/http/handlers"
	"creativeflow/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/pipeline", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/execute", app.Execute)
			r.Post("/resume", app.Resume)
		})
		r.Get("/status", app.Status)
		r.Get("/executions/{execution_id}", app.Status)
		r.Get("/personas", app.ListPersonas)
	})

	return r
}
