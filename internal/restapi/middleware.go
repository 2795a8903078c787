package restapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fabric-actor/kernel/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture the status code
// for the access log line, the same shape the teacher's
// middleware.responseWriter uses.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// loggingMiddleware logs one line per request with method, path,
// status and latency.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.WithFields(map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
			}).Info("rest api request")
		})
	}
}
