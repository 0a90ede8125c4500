package api

import (
	"log"
	"net/http"
	"os"
	"strings"

	"ScholarSaas/internal/logger"
	"ScholarSaas/pkg/loadbalancer"

	"github.com/gorilla/mux"
)

// NewRouter builds the gateway routing table. Every downstream service
// sits behind its path prefix; unknown paths fall through to the audit
// 404 handler. SCHOLAR_BACKENDS with multiple comma-separated targets
// switches the scholar prefix to round-robin balancing.
func NewRouter() *mux.Router {
	router := mux.NewRouter()

	router.PathPrefix("/scholar/").Handler(scholarBackend())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("API Gateway is healthy"))
	}).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logr := logger.GlobalLogger
		msg := "[Gateway] [Error] " + r.URL.Path + " from " + r.RemoteAddr + " (route not found)"
		if logr != nil {
			logr.LogAudit(msg)
		} else {
			log.Println(msg)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("404 - Route not found"))
	})

	return router
}

func scholarBackend() http.Handler {
	var targets []string
	for _, t := range strings.Split(os.Getenv("SCHOLAR_BACKENDS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) > 1 {
		return loadbalancer.NewLoadBalancer(targets)
	}
	if len(targets) == 1 {
		return createReverseProxy(targets[0])
	}
	return createReverseProxy("http://localhost:7143")
}
