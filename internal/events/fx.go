package events

import (
	"context"

	"github.com/smallbiznis/kontago/internal/config"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
	fx.Provide(newDispatcher),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewPublisher selects Kafka when brokers are configured and the log otherwise.
func NewPublisher(p Params) Publisher {
	log := p.Log.Named("events")
	if len(p.Config.Kafka.Brokers) == 0 {
		log.Info("no kafka brokers configured, events go to the log")
		return NewLogPublisher(log)
	}

	publisher := NewKafkaPublisher(p.Config.Kafka.Brokers, p.Config.Kafka.Topic)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	log.Info("publishing events to kafka",
		zap.Strings("brokers", p.Config.Kafka.Brokers),
		zap.String("topic", p.Config.Kafka.Topic),
	)
	return publisher
}

type dispatcherParams struct {
	fx.In

	Publisher Publisher
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func newDispatcher(p dispatcherParams) *Dispatcher {
	return NewDispatcher(p.Publisher, p.Log.Named("events.dispatcher"), p.Metrics)
}
