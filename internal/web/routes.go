package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/archive-similarity/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	similarityHandler := handlers.NewSimilarityHandler(s.data, s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/stats", similarityHandler.Stats)
		r.Get("/pairs", similarityHandler.Pairs)
		r.Get("/groups/{groupID}/clusters", similarityHandler.Clusters)
		r.Get("/search", similarityHandler.Search)
	})
}
