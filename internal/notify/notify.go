// Package notify publishes domain events after state transitions. Publishing
// is fire-and-forget: a broker outage never blocks or reverts a transition.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"coachbook/internal/logger"
	"coachbook/internal/metrics"
)

const (
	outboxKey  = "notify:outbox"
	maxTries   = 3
	retryDelay = 5 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

// Nop is used in tests and when notifications are disabled.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) {}

// Envelope is the wire format on the exchange. Payload is event-specific and
// additive-only across versions.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
	Tries      int         `json:"tries"`
}

type Service struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	redis    *redis.Client
}

// New connects to the broker and the outbox store. A failed broker connection
// is tolerated: events are parked in the outbox until the worker can drain
// them.
func New(amqpURL, exchange, redisAddr string) *Service {
	s := &Service{
		exchange: exchange,
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Errorf("notify: amqp dial failed, events will queue in outbox: %v", err)
		return s
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Errorf("notify: amqp channel failed: %v", err)
		_ = conn.Close()
		return s
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Errorf("notify: exchange declare failed: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return s
	}

	s.conn = conn
	s.ch = ch
	return s
}

func (s *Service) Publish(ctx context.Context, eventType string, payload interface{}) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	if err := s.publishNow(ctx, env); err != nil {
		logger.Errorf("notify: publish %s failed, parking in outbox: %v", eventType, err)
		metrics.RecordNotifyFailure()
		s.park(env)
	}
}

func (s *Service) publishNow(ctx context.Context, env Envelope) error {
	if s.ch == nil {
		return amqp.ErrClosed
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return s.ch.PublishWithContext(ctx, s.exchange, env.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Body:        body,
	})
}

func (s *Service) park(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("notify: bad envelope: %v", err)
		return
	}
	// Outbox writes are best-effort too; losing a notification is acceptable,
	// blocking a booking transition is not.
	if err := s.redis.LPush(context.Background(), outboxKey, data).Err(); err != nil {
		logger.Errorf("notify: outbox write failed, dropping %s: %v", env.Type, err)
	}
}

// Start drains the outbox until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("notify outbox worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("notify outbox worker stopped")
			return
		default:
			s.drainNext(ctx)
		}
	}
}

func (s *Service) drainNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, outboxKey).Result()
	if err != nil {
		return
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result[1]), &env); err != nil {
		logger.Errorf("notify: bad outbox data: %v", err)
		return
	}

	env.Tries++
	if err := s.publishNow(ctx, env); err != nil {
		if env.Tries < maxTries {
			time.Sleep(retryDelay)
			data, _ := json.Marshal(env)
			s.redis.LPush(context.Background(), outboxKey, data)
			return
		}
		logger.Errorf("notify: event %s dropped after %d attempts: %v", env.ID, env.Tries, err)
		metrics.RecordNotifyFailure()
		return
	}

	logger.Debugf("notify: drained outbox event %s (%s)", env.ID, env.Type)
}

func (s *Service) Close() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	_ = s.redis.Close()
}
