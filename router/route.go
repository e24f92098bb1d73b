package router

import (
	"log/slog"
	"net/http"

	handlers "github.com/gigapi/gigaview/handler"
	"github.com/gigapi/gigaview/utils/logger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Route struct {
	Path    string
	Methods []string
	Handler func(w http.ResponseWriter, r *http.Request) error
}

func WithErrorHandle(hndl func(w http.ResponseWriter, r *http.Request) error,
) func(w http.ResponseWriter, r *http.Request) {
	log := logger.With("http")
	return func(w http.ResponseWriter, r *http.Request) {
		err := hndl(w, r)
		if err != nil {
			status := handlers.StatusFor(err)
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "request failed",
				"path", r.URL.Path, "status", status, "error", err)
			handlers.WriteError(w, err)
		}
	}
}

func apiRoutes(h *handlers.Handler) []*Route {
	return []*Route{
		{Path: "/api/v1/query", Methods: []string{"POST"}, Handler: h.Query},
		{Path: "/api/v1/map", Methods: []string{"POST"}, Handler: h.Map},
		{Path: "/health", Methods: []string{"GET"}, Handler: h.Health},
		{Path: "/ping", Methods: []string{"GET", "HEAD"}, Handler: h.Ping},
	}
}

func NewRouter(h *handlers.Handler) *mux.Router {
	router := mux.NewRouter()
	for _, r := range apiRoutes(h) {
		router.HandleFunc(r.Path, WithErrorHandle(r.Handler)).Methods(r.Methods...)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}
