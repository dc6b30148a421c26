package middleware

import (
	"net/http"
	"strconv"
	"time"

	"creditflow/pkg/metrics"
)

// MetricsMiddleware her isteği yöntem, rota kalıbı ve durum koduyla sayar.
// Etiket olarak ham path yerine ServeMux'un eşlediği kalıp kullanılır; path
// tabanlı etiket kardinaliteyi sınırsız büyütür.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Pattern mux eşlemesi sırasında doldurulur; eşleşmeyen istekler
		// (404) ham path yerine tek bir etikette toplanır.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		metrics.RecordHttpRequest(
			r.Method,
			route,
			strconv.Itoa(rw.statusCode),
			time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
