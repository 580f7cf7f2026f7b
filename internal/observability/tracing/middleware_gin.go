package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kontago/internal/observability/context"
	"github.com/smallbiznis/kontago/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig controls which domain attributes land on request spans.
type MiddlewareConfig struct {
	// ErrorClassifier maps a handler error to (error.type, error.code).
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware opens a server span per request. The span is named after the
// route and carries the touched resource id, the registered invoice code and
// the error classification of failed requests.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("kontago/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		ctx = withCorrelationBaggage(ctx)
		span.SetAttributes(SafeAttributes(
			attribute.String("kontago.request_id", obscontext.RequestIDFromContext(ctx)),
			attribute.String("kontago.correlation_id", correlation.ExtractCorrelationID(ctx)),
		)...)

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.String("kontago.invoice.code", c.GetString("invoice_code")),
		}
		if key, ok := resourceKey(route); ok {
			attrs = append(attrs, attribute.String(key, c.Param("id")))
		}

		lastErr := c.Errors.Last()
		if lastErr != nil && cfg.ErrorClassifier != nil && status >= http.StatusBadRequest {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			attrs = append(attrs,
				attribute.String("error.type", errType),
				attribute.String("error.code", errCode),
			)
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// resourceKey names the id attribute for routes addressing a single resource.
func resourceKey(route string) (string, bool) {
	if !strings.Contains(route, "/:id") {
		return "", false
	}
	switch {
	case strings.Contains(route, "/products/"):
		return "kontago.product.id", true
	case strings.Contains(route, "/invoices/"):
		return "kontago.invoice.id", true
	case strings.Contains(route, "/suppliers/"):
		return "kontago.supplier.id", true
	}
	return "", false
}

// withCorrelationBaggage propagates request and correlation ids to downstream calls.
func withCorrelationBaggage(ctx context.Context) context.Context {
	members := make([]baggage.Member, 0, 2)
	for key, value := range map[string]string{
		"request_id":     obscontext.RequestIDFromContext(ctx),
		"correlation_id": correlation.ExtractCorrelationID(ctx),
	} {
		if value == "" {
			continue
		}
		if member, err := baggage.NewMember(key, value); err == nil {
			members = append(members, member)
		}
	}
	if len(members) == 0 {
		return ctx
	}
	bag, err := baggage.New(members...)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
