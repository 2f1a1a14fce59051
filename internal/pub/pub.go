package pub

import (
	"context"
	"encoding/json"
	"time"

	"ledger-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// LedgerEventsChannel is the redis pub/sub channel consumed by the
	// notification collaborator.
	LedgerEventsChannel = "ledger_events"

	publishTimeout = 5 * time.Second
)

// Notifier receives completed-operation events. Implementations must not
// block the mutation path; publication failures are logged, never returned.
type Notifier interface {
	OperationCompleted(ctx context.Context, ev *domain.OperationEvent)
}

// EventPublisher fans completed-operation events out to the redis channel
// and the kafka topic. Either sink may be nil (disabled).
type EventPublisher struct {
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.Logger
}

// NewEventPublisher creates a publisher over the given sinks.
func NewEventPublisher(rdb *redis.Client, writer *kafka.Writer, log *zap.Logger) *EventPublisher {
	return &EventPublisher{rdb: rdb, writer: writer, log: log}
}

// OperationCompleted publishes the event in the background. The caller's
// mutation has already committed; nothing here can fail it.
func (p *EventPublisher) OperationCompleted(_ context.Context, ev *domain.OperationEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to marshal operation event", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if p.rdb != nil {
			if err := p.rdb.Publish(ctx, LedgerEventsChannel, payload).Err(); err != nil {
				p.log.Warn("failed to publish event to redis",
					zap.String("event_type", string(ev.EventType)),
					zap.Error(err))
			}
		}

		if p.writer != nil {
			msg := kafka.Message{
				Key:   []byte(string(ev.EventType)),
				Value: payload,
			}
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.log.Warn("failed to publish event to kafka",
					zap.String("event_type", string(ev.EventType)),
					zap.Error(err))
			}
		}
	}()
}
