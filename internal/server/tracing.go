package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/transitops/gatekeeper/internal/observability"
)

// tracerName is the instrumentation scope for server spans.
const tracerName = "gatekeeper/server"

// Tracing opens one server span per request. Trace context arriving in
// the request headers is honored. Health and metrics probes are not
// traced.
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	skip := map[string]bool{
		"/healthz": true,
		"/metrics": true,
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.Request.Context(),
			propagation.HeaderCarrier(c.Request.Header),
		)

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("url.path", path),
				attribute.String("client.address", c.ClientIP()),
			),
		)
		defer span.End()

		if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
		}
	}
}
