package repository

import (
	"context"
	"time"

	"SqueezeScan/internal/domain/models"
	pkgkafka "SqueezeScan/pkg/kafka"
	applogger "SqueezeScan/pkg/logger"
)

// scanEvent is the wire shape of one scan lifecycle event.
type scanEvent struct {
	Event      string            `json:"event"` // started, progress, completed, error, cancelled
	ScanID     string            `json:"scan_id"`
	Status     models.ScanStatus `json:"status"`
	Progress   int               `json:"progress"`
	Phase      string            `json:"phase,omitempty"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// KafkaEventPublisher emits scan lifecycle events to one topic, keyed
// by scan id so consumers see each scan's events in order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// SetLogger injects a structured logger.
func (p *KafkaEventPublisher) SetLogger(l *applogger.Logger) { p.l = l }

func (p *KafkaEventPublisher) PublishScanEvent(ctx context.Context, event string, rec models.ScanRecord) error {
	e := scanEvent{
		Event:      event,
		ScanID:     rec.ID,
		Status:     rec.Status,
		Progress:   rec.Progress,
		Phase:      rec.CurrentPhase,
		Error:      rec.Error,
		OccurredAt: time.Now(),
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(rec.ID), e); err != nil {
		if p.l != nil {
			p.l.Warn("publish scan event failed",
				applogger.String("event", event),
				applogger.String("scan_id", rec.ID),
				applogger.Error(err))
		}
		return err
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }

// NopEventPublisher drops events; used when eventing is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishScanEvent(context.Context, string, models.ScanRecord) error {
	return nil
}

func (NopEventPublisher) Close() error { return nil }
