package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/launcher-accounts/internal/logging"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id, echoes it in the response and
// logs the outcome.
func RequestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = logging.GenerateRequestID()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logging.FromContext(r.Context(), log).Info("📥 Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
