package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"order-fulfillment/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Dead-letter headers
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes keyed messages to one topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer. Messages are partitioned by key.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return newProducer(writer, topic)
}

func newProducer(writer messageWriter, topic string) *Producer {
	return &Producer{writer: writer, topic: topic, logger: util.GetLogger()}
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string {
	return p.topic
}

// PublishEvent publishes an event to Kafka
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.PublishRaw(ctx, key, eventBytes, nil)
}

// PublishRaw writes an already encoded value. The current trace context is
// added to the headers.
func (p *Producer) PublishRaw(ctx context.Context, key string, value []byte, headers []kafka.Header) error {
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: injectTraceContext(ctx, headers),
		Time:    time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published message",
		zap.String("topic", p.topic),
		zap.String("key", key))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The consumer dead-letters such
// messages on the first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// RetryPolicy bounds handler retries before a message is dead-lettered.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer represents a Kafka consumer group member
type Consumer struct {
	reader     messageReader
	topic      string
	deadLetter *Producer
	policy     RetryPolicy
	logger     *zap.Logger
}

// NewConsumer creates a new Kafka consumer. deadLetter may be nil, in which
// case exhausted messages are logged and committed.
func NewConsumer(brokers []string, topic, groupID string, deadLetter *Producer, policy RetryPolicy) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, topic, deadLetter, policy)
}

func newConsumer(reader messageReader, topic string, deadLetter *Producer, policy RetryPolicy) *Consumer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Consumer{
		reader:     reader,
		topic:      topic,
		deadLetter: deadLetter,
		policy:     policy,
		logger:     util.GetLogger(),
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// StartConsuming fetches messages until ctx is cancelled. Each message is
// handled with retries, dead-lettered when retries are exhausted, and then
// committed.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		attempts, herr := c.handleWithRetry(ctx, msg, handler)
		if herr != nil {
			if ctx.Err() != nil {
				// Not committed; the group redelivers it after rebalance.
				return ctx.Err()
			}
			// Commits are per partition offset, so the next fetch must wait
			// until this message is parked in the DLT.
			if err := c.deadLetterUntilDelivered(ctx, msg, herr, attempts); err != nil {
				return err
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler MessageHandler) (int, error) {
	msgCtx := extractTraceContext(ctx, msg.Headers)

	var err error
	attempt := 0
	for attempt < c.policy.MaxAttempts {
		attempt++
		if err = handler(msgCtx, msg); err == nil {
			return attempt, nil
		}

		c.logger.Warn("Error handling message",
			zap.String("topic", c.topic),
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if isPermanent(err) || attempt == c.policy.MaxAttempts {
			break
		}
		util.ConsumerRetriesTotal.WithLabelValues(c.topic).Inc()
		if !sleepCtx(ctx, c.policy.Backoff) {
			return attempt, ctx.Err()
		}
	}
	return attempt, err
}

// deadLetterUntilDelivered retries the dead-letter publish until it succeeds
// or ctx ends.
func (c *Consumer) deadLetterUntilDelivered(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	backoff := c.policy.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		err := c.sendToDeadLetter(ctx, msg, cause, attempts)
		if err == nil {
			return nil
		}
		c.logger.Error("Failed to dead-letter message, retrying",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	reason := "exhausted"
	if isPermanent(cause) {
		reason = "permanent"
	}

	if c.deadLetter == nil {
		util.ConsumerDeadLetteredTotal.WithLabelValues(c.topic, reason).Inc()
		c.logger.Error("Dropping message after failed handling",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Error(cause))
		return nil
	}

	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(c.topic)},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)

	if err := c.deadLetter.PublishRaw(ctx, string(msg.Key), msg.Value, headers); err != nil {
		return err
	}
	util.ConsumerDeadLetteredTotal.WithLabelValues(c.topic, reason).Inc()

	c.logger.Warn("Message dead-lettered",
		zap.String("dlt", c.deadLetter.Topic()),
		zap.String("key", string(msg.Key)),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
