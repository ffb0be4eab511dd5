package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /analyses", h.CreateAnalysis)
	mux.HandleFunc("GET /analyses", h.ListAnalyses)
	mux.HandleFunc("GET /analyses/{id}", h.GetAnalysis)
	mux.HandleFunc("DELETE /analyses/{id}", h.DeleteAnalysis)
	mux.HandleFunc("POST /analyses/{id}/reanalyze", h.Reanalyze)
	mux.HandleFunc("GET /analyses/{id}/audio", h.GetAudio)

	mux.HandleFunc("GET /analyses/{id}/session", h.GetSession)
	mux.HandleFunc("PUT /analyses/{id}/session/settings", h.UpdateSettings)
	mux.HandleFunc("POST /analyses/{id}/session/play", h.Play)
	mux.HandleFunc("POST /analyses/{id}/session/stop", h.Stop)
	mux.HandleFunc("GET /analyses/{id}/session/events", h.Events)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
