package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestMemoryCache_Spans verifies cache operations record spans with the
// hit outcome. Not parallel: it swaps the global tracer provider.
func TestMemoryCache_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	oldTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	cacheTracer = otel.Tracer("gatekeeper/cache")
	defer func() {
		otel.SetTracerProvider(oldTP)
		cacheTracer = otel.Tracer("gatekeeper/cache")
	}()

	ctx := context.Background()
	c := NewMemoryCache(nil)

	_, err := c.Get(ctx, "absent")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "present", []byte("v"), 0))
	_, err = c.Get(ctx, "present")
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	assert.Equal(t, "cache.Get", spans[0].Name)
	assert.Equal(t, "false", spanAttr(spans[0], "cache.hit"))
	assert.Equal(t, TypeMemory, spanAttr(spans[0], "cache.backend"))

	assert.Equal(t, "cache.Set", spans[1].Name)

	assert.Equal(t, "cache.Get", spans[2].Name)
	assert.Equal(t, "true", spanAttr(spans[2], "cache.hit"))
}

func spanAttr(span tracetest.SpanStub, key string) string {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}
