package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// RouterOptions configures middleware around the handlers.
type RouterOptions struct {
	AllowedOrigins []string
	// InternalToken guards /internal routes. Empty leaves them open.
	InternalToken string
	// Redirect, when set, serves GET /redirect/{shortLinkID} from the same
	// process.
	Redirect http.HandlerFunc
}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CallerHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	if opts.Redirect != nil {
		r.Get("/redirect/{shortLinkID}", opts.Redirect)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireCaller)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Patch("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/schedule", h.ScheduleCampaign)
				r.Put("/schedule", h.RescheduleCampaign)
				r.Delete("/schedule", h.UnscheduleCampaign)
				r.Post("/send", h.SendCampaign)
				r.Get("/blasts", h.ListBlasts)
			})
		})
		r.Get("/blasts/{id}/sends", h.ListSends)
	})

	if opts.InternalToken == "" {
		logger.Warn("[api] internal routes are not token protected")
	}
	r.Route("/internal", func(r chi.Router) {
		r.Use(requireInternalToken(opts.InternalToken))
		r.Post("/scheduler/callback", h.SchedulerCallback)
		r.Post("/blasts/{id}/replies", h.RecordReply)
		r.Post("/blasts/{id}/opens", h.RecordOpen)
		r.Post("/blasts/{id}/opt-outs", h.RecordOptOut)
		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.CreateSuppression)
			r.Get("/stats", h.SuppressionStats)
			r.Delete("/{channel}/{recipientID}", h.DeleteSuppression)
		})
		r.Patch("/short-links/{id}", h.UpdateShortLink)
	})

	return r
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CallerHeader)
		if id == "" {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, id)))
	})
}

func requireInternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(InternalTokenHeader)), []byte(token)) != 1 {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
