package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Header reads are bounded tightly; body reads get
// more room because document uploads arrive as multi-megabyte JSON payloads.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
