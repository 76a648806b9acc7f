package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/datmqhust/bookstore-orders/internal/events"
	"github.com/datmqhust/bookstore-orders/internal/kafkax"
	"github.com/datmqhust/bookstore-orders/internal/redisx"
)

// Service consumes order/payment events and emits customer notifications.
// Actual delivery (email, SMS) sits behind the Sink so this service stays a
// pure consumer; the default sink logs.
type Service struct {
	Redis *redis.Client
	Sink  Sink
	Log   *slog.Logger
}

type Sink interface {
	Notify(ctx context.Context, userOrOrderID, subject, body string) error
}

// LogSink is the default delivery target. Real channels are outside this
// service's scope.
type LogSink struct{ Log *slog.Logger }

func (s LogSink) Notify(ctx context.Context, id, subject, body string) error {
	s.Log.Info("notification", "target", id, "subject", subject, "body", body)
	return nil
}

// Handle is installed as the kafka consumer handler for all three topics.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup across redeliveries, keyed by event id
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sink.Notify(ctx, p.UserID, "Order received",
			fmt.Sprintf("Order %s placed, total %d, %d item(s)", p.OrderID, p.TotalAmount, len(p.Items)))
	case events.EventPaymentCompleted:
		p, err := kafkax.UnwrapPayload[events.PaymentCompletedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sink.Notify(ctx, p.OrderID, "Payment received",
			fmt.Sprintf("Payment %s for order %s confirmed (%d)", p.PaymentID, p.OrderID, p.Amount))
	case events.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[events.PaymentFailedPayload](env.Payload)
		if err != nil {
			return err
		}
		return s.Sink.Notify(ctx, p.OrderID, "Payment problem",
			fmt.Sprintf("Payment for order %s needs attention: %s", p.OrderID, p.Reason))
	default:
		s.Log.Debug("ignoring event", "type", env.EventType)
		return nil
	}
}
