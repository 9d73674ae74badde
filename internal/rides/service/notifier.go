package service

import (
	"context"
	"time"

	"ridepool/pkg/kafka"
	"ridepool/pkg/logger"
	"ridepool/pkg/model"
)

// Notifier hands booking outcomes to the external notification pipeline.
// Delivery is fire-and-forget: implementations must never fail the state
// transition that produced the event.
type Notifier interface {
	BookingOutcome(ctx context.Context, event model.BookingEvent)
}

type kafkaNotifier struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, log *logger.Logger) Notifier {
	return &kafkaNotifier{
		producer: producer,
		log:      log,
	}
}

func (n *kafkaNotifier) BookingOutcome(ctx context.Context, event model.BookingEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	msg := kafka.NewMessage().
		WithKey(event.BookingID).
		WithEventType("booking." + string(event.Outcome)).
		WithSource("rides").
		WithValue(event).
		Build()

	if err := n.producer.Publish(ctx, msg); err != nil {
		n.log.Warn("Failed to publish booking event",
			"booking_id", event.BookingID,
			"ride_id", event.RideID,
			"outcome", event.Outcome,
			"error", err,
		)
	}
}

// NopNotifier discards events. Used when Kafka is not configured and in
// service tests that do not assert on notifications.
type NopNotifier struct{}

func (NopNotifier) BookingOutcome(context.Context, model.BookingEvent) {}
