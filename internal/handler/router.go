package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opns/internal/middleware"
	"opns/pkg/logger"
)

// NewRouter wires the callback server routes, serving the checkout return
// at returnPath. gatherer may be nil.
func NewRouter(returnPath string, ret *ReturnHandler, gatherer prometheus.Gatherer, log logger.Logger) *mux.Router {
	if returnPath == "" {
		returnPath = "/return"
	}
	r := mux.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.NoStore)

	system := NewSystemHandler()
	r.HandleFunc("/health", system.Health).Methods(http.MethodGet)
	r.HandleFunc(returnPath, ret.Return).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}
