package viewer

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the viewer routes on a router mounted at /viewer.
func SetupRoutes(router chi.Router, cfg Config) {
	handlers := NewHandlers(cfg)

	router.Get("/", handlers.Page)

	router.Route("/api", func(r chi.Router) {
		r.Get("/status", handlers.StatusSSE)                 // Database status
		r.Get("/tables", handlers.TablesSSE)                 // Tables and views
		r.Get("/tables/{table}", handlers.BrowseSSE)         // One page of rows
		r.Get("/tables/{table}/meta", handlers.TableMetaSSE) // Table columns
		r.Get("/schemas", handlers.SchemasSSE)               // Columns of every table
		r.Post("/execute", handlers.ExecuteSSE)              // Run a statement
	})
}
