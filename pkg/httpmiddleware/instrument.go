package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument returns a middleware that traces requests with OpenTelemetry and
// records a per-request counter. The operation name is used as the span name
// prefix.
func Instrument(operation string, m *app.Telemetry) Middleware {
	meter := m.MeterProvider().Meter(operation)
	requests, _ := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests received"),
	)

	otelMW := otelhttp.NewMiddleware(operation,
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
		otelhttp.WithPropagators(m.TextMapPropagator()),
	)

	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(r.Context(), 1, metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
			))
			next.ServeHTTP(w, r)
		})
		return otelMW(counted)
	}
}
