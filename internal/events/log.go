package events

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/kontago/internal/observability/logger"
	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	evt = normalize(evt)
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return err
	}
	logger.WithContext(ctx, p.log).Info("domain event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("key", evt.Key),
		zap.ByteString("data", data),
	)
	return nil
}
