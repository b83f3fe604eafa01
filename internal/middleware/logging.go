package middleware

import (
	"net/http"
	"time"

	"opns/pkg/logger"
)

// Return URL markers. Only their presence is logged, never the values.
var checkoutMarkers = []string{"payment_success", "payment_cancelled"}

// AccessLog writes one entry per request. The query string is left out
// since return URLs carry checkout state tokens; a checkout return is
// tagged with the marker it carried instead. 4xx responses log at warn and
// 5xx at error.
func AccessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			fields := LogFields(r.Context(), map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if marker := checkoutMarker(r); marker != "" {
				fields["checkout"] = marker
			}

			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				log.Error("HTTP Request", fields)
			case wrapped.statusCode >= http.StatusBadRequest:
				log.Warn("HTTP Request", fields)
			default:
				log.Info("HTTP Request", fields)
			}
		})
	}
}

func checkoutMarker(r *http.Request) string {
	q := r.URL.Query()
	for _, m := range checkoutMarkers {
		if q.Has(m) {
			return m
		}
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
