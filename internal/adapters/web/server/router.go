package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/web/middleware"
)

// SetupRoutes builds the router. Platform identifiers travel percent-encoded and
// may contain '/', so routing matches on the encoded path.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r
	if s.Prefix != "" {
		api = r.PathPrefix(s.Prefix).Subrouter()
	}
	limit := middleware.RateLimitMiddleware(s.limiter)

	// Inventory
	api.HandleFunc("/equipments", s.EquipmentHandler.HandleList).Methods(http.MethodGet)
	api.Handle("/equipments", limit(http.HandlerFunc(s.EquipmentHandler.HandleCreate))).Methods(http.MethodPost)
	api.Handle("/equipments/{id}", limit(http.HandlerFunc(s.EquipmentHandler.HandleDelete))).Methods(http.MethodDelete)
	api.HandleFunc("/equipments/{id}/exposure", s.EquipmentHandler.HandleExposure).Methods(http.MethodGet)

	// Correlation
	api.HandleFunc("/cves/{cpe:.+}", s.CVEHandler.HandleByPlatform).Methods(http.MethodGet)
	api.HandleFunc("/cves/", s.CVEHandler.HandleByPlatform).Methods(http.MethodGet)

	// Dashboard
	api.HandleFunc("/dashboard", s.DashboardHandler.HandleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/report.pdf", s.DashboardHandler.HandleReport).Methods(http.MethodGet)

	// Feed refresh
	api.Handle("/refresh-cves", limit(http.HandlerFunc(s.RefreshHandler.HandleTrigger))).Methods(http.MethodPost)
	api.HandleFunc("/refresh-cves/status", s.RefreshHandler.HandleStatus).Methods(http.MethodGet)

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	// Outermost so that preflight requests never hit method matching.
	return middleware.CORSMiddleware(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
