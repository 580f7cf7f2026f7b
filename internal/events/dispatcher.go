package events

import (
	"context"

	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"go.uber.org/zap"
)

// Dispatcher publishes best-effort: committed work is never undone by a broker failure.
type Dispatcher struct {
	publisher Publisher
	log       *zap.Logger
	metrics   *obsmetrics.Metrics
}

func NewDispatcher(publisher Publisher, log *zap.Logger, metrics *obsmetrics.Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{publisher: publisher, log: log, metrics: metrics}
}

func (d *Dispatcher) Dispatch(ctx context.Context, evts ...Event) {
	if d == nil || d.publisher == nil {
		return
	}
	for _, evt := range evts {
		if err := d.publisher.Publish(ctx, evt); err != nil {
			d.metrics.RecordEventPublished(ctx, evt.Type, "failed")
			d.log.Warn("failed to publish event",
				zap.String("event_type", evt.Type),
				zap.String("key", evt.Key),
				zap.Error(err),
			)
			continue
		}
		d.metrics.RecordEventPublished(ctx, evt.Type, "ok")
	}
}
