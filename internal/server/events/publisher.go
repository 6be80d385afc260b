// Package events publishes account lifecycle events to Kafka.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

const publishTimeout = 5 * time.Second

// Publisher sends an event and returns immediately.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte)
}

// Noop drops every event. It is used when publishing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, []byte) {}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event from its own goroutine through a circuit
// breaker, so an unreachable broker fails fast instead of piling up writes.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewKafkaPublisher(brokers []string, logger logging.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger logging.Logger) *KafkaPublisher {
	logger = logger.With("module", "events")
	return &KafkaPublisher{
		writer: w,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kafka",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn(context.Background(), "circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		logger:  logger,
		timeout: publishTimeout,
	}
}

// Publish does not wait for delivery. Failures are logged. The write
// outlives cancellation of ctx.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) {
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		_, err := p.breaker.Execute(func() (any, error) {
			return nil, p.writer.WriteMessages(ctx, kafka.Message{
				Topic: topic,
				Key:   []byte(key),
				Value: payload,
				Time:  time.Now(),
			})
		})
		if err != nil {
			p.logger.Warn(ctx, "publish event failed", "topic", topic, "key", key, "error", err)
			return
		}
		p.logger.Debug(ctx, "event published", "topic", topic, "key", key)
	}()
}

// Close waits for in-flight writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.wg.Wait()
	return p.writer.Close()
}
