package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Route("/interview", func(r chi.Router) {
				r.Post("/init", apiHandler.InitHandler)
				r.Post("/chat", apiHandler.ChatHandler)
				r.Post("/evaluate", apiHandler.EvaluateHandler)
				r.Get("/autoevaluate", apiHandler.AutoEvaluateHandler)
				r.Get("/state", apiHandler.StateHandler)
				r.Delete("/history", apiHandler.DeleteHistoryHandler)
			})
		})
	})

	return r
}
