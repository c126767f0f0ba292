package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/sysmetic/backend/internal/api/handlers"
	"github.com/wonny/sysmetic/backend/internal/realtime"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(ledger *handlers.LedgerHandler, scores *handlers.ScoreHandler, hub *realtime.Hub, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Event stream
	r.HandleFunc("/ws", hub.ServeWS).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Strategy ledger endpoints
	api.HandleFunc("/strategies", ledger.RegisterStrategy).Methods("POST")
	api.HandleFunc("/strategies/{id:[0-9]+}/daily", ledger.AppendDaily).Methods("POST")
	api.HandleFunc("/strategies/{id:[0-9]+}/daily/latest", ledger.DeleteLatest).Methods("DELETE")
	api.HandleFunc("/strategies/{id:[0-9]+}/daily/{date}", ledger.CorrectDaily).Methods("PUT")
	api.HandleFunc("/strategies/{id:[0-9]+}/import", ledger.Import).Methods("POST")
	api.HandleFunc("/strategies/{id:[0-9]+}/rebuild", ledger.Rebuild).Methods("POST")
	api.HandleFunc("/strategies/{id:[0-9]+}/ledger", ledger.GetLedger).Methods("GET")
	api.HandleFunc("/strategies/{id:[0-9]+}/ledger/latest", ledger.GetLatest).Methods("GET")
	api.HandleFunc("/strategies/{id:[0-9]+}/monthly", ledger.GetMonthly).Methods("GET")
	api.HandleFunc("/strategies/{id:[0-9]+}/export.csv", ledger.Export).Methods("GET")

	// SM-Score endpoints
	api.HandleFunc("/scores", scores.GetScores).Methods("GET")
	api.HandleFunc("/scores/run", scores.RunScores).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "sysmetic-ledger-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
