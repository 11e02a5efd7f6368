// Package httptransport composes the module handlers into one router. It owns
// only transport concerns; domain behavior lives in the module services.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caregate/pkg/platform/httputil"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter mounts all module handlers plus the operational endpoints.
func NewRouter(handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		if h != nil {
			h.Register(r)
		}
	}
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
