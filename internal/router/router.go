// Package router builds the chi mux every server entrypoint mounts its
// routes onto: CORS, tracing, and the panic/request-id hardening a surface
// reachable directly by unauthenticated fleet devices needs.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
)

// requestTimeout bounds how long a single device or operator request may
// run before the mux gives up on it; device attestation and batch ingestion
// are the slowest paths and both comfortably fit inside this.
const requestTimeout = 30 * time.Second

// New builds the mux shared by the device-facing and operator-facing
// surfaces. serviceName tags both the otelchi spans and the
// X-Service-Name response header operators use to confirm which
// deployment answered a request.
func New(serviceName string) *chi.Mux {
	r := chi.NewRouter()

	// Recoverer matters here specifically because /devices/* is reachable
	// by unauthenticated hardware in the field sending malformed TOON
	// bodies; a panic in one device's request must not take the process
	// down for every other device.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(serviceNameHeader(serviceName))

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Content-Transfer-Encoding", "Authorization"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))

	return r
}

func serviceNameHeader(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Service-Name", serviceName)
			next.ServeHTTP(w, r)
		})
	}
}
