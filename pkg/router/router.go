package router

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// NewHealthRouter serves the minimal endpoints a worker process exposes:
// liveness only, no API surface.
func NewHealthRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
