package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, cid)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))

	ctx2, cid2 := EnsureCorrelationID(ctx)
	assert.Equal(t, cid, cid2)
	assert.Equal(t, cid, ExtractCorrelationID(ctx2))
}

func TestInjectTrace(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "01HZX")
	ctx = ContextWithRemoteSpan(ctx, "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")

	headers := InjectTrace(ctx, nil)
	assert.Equal(t, "01HZX", headers["correlation_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", headers["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", headers["span_id"])
	assert.NotEmpty(t, headers["published_at"])
}

func TestContextWithRemoteSpanIgnoresGarbage(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "nope", "nope")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
