package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"creditflow/pkg/tracing"
)

// TracingMiddleware her istek için bir span açar ve trace kimliğini hem
// cevaba hem de alttaki handler'ların context'ine taşır.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "http_request")
		defer span.End()

		if traceID := tracing.GetTraceID(ctx); traceID != "" {
			w.Header().Set("X-Trace-ID", traceID)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		// Pattern, mux'un çalıştırdığı istek üzerinde dolar; klon elde
		// tutulur ki eşleşen kalıp buradan okunabilsin.
		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		// Span adı eşleşen rota kalıbına çekilir; kalıp ancak mux
		// çalıştıktan sonra bellidir.
		if r.Pattern != "" {
			span.SetName(r.Pattern)
		}
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.Pattern),
			attribute.Int("http.status_code", rw.statusCode),
		)
		if rw.statusCode >= 400 {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}
