package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// NewRouter sets up routes and applies global middleware.
func NewRouter(h *Handler, limiter *rate.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/download", h.Download)
	mux.HandleFunc("/api/progress", h.Progress)
	mux.HandleFunc("/api/cancel", h.Cancel)
	mux.HandleFunc("/api/direct-links", h.DirectLinks)
	mux.HandleFunc("/api/video-info", h.VideoInfo)
	mux.HandleFunc("/api/audio-formats", h.AudioFormats)
	mux.HandleFunc("/downloads/", h.ServeDownload)
	mux.HandleFunc("/health", h.Health)

	return CORSMiddleware(RateLimitMiddleware(limiter, mux))
}
