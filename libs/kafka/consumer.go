package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type MessageHandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	dlq          Publisher
	dlqTopic     string
	maxAttempts  int
	retryBackoff time.Duration
	offsetOldest bool
}

// WithDLQ routes messages that fail permanently to topic.
func WithDLQ(publisher Publisher, topic string) ConsumerOption {
	return func(o *consumerOptions) {
		o.dlq = publisher
		o.dlqTopic = topic
	}
}

func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		o.retryBackoff = backoff
	}
}

// WithNewestOffset starts a fresh group at the end of the log.
func WithNewestOffset() ConsumerOption {
	return func(o *consumerOptions) { o.offsetOldest = false }
}

type Consumer struct {
	group  sarama.ConsumerGroup
	logger *slog.Logger
	opts   consumerOptions
}

func defaultConsumerOptions() consumerOptions {
	return consumerOptions{maxAttempts: 3, retryBackoff: 200 * time.Millisecond, offsetOldest: true}
}

func NewConsumer(brokers []string, groupID string, logger *slog.Logger, options ...ConsumerOption) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := defaultConsumerOptions()
	for _, o := range options {
		o(&opts)
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if opts.offsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &Consumer{group: group, logger: logger, opts: opts}, nil
}

// Consume blocks until ctx is done, rejoining the group after rebalances.
func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}

	cgHandler := newGroupHandler(handler, c.logger, c.opts)

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("kafka consume error", "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
	opts    consumerOptions
	sleep   func(context.Context, time.Duration)
}

func newGroupHandler(handler MessageHandler, logger *slog.Logger, opts consumerOptions) *consumerGroupHandler {
	return &consumerGroupHandler{handler: handler, logger: logger, opts: opts, sleep: sleepCtx}
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if h.process(session.Context(), msg) {
			session.MarkMessage(msg, "")
		}
	}
	return nil
}

// process returns true when the message may be committed.
func (h *consumerGroupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	var err error
	attempts := 0
	for attempts < h.opts.maxAttempts {
		attempts++
		err = h.handler.HandleMessage(ctx, msg)
		if err == nil {
			return true
		}
		var dlqErr *DLQError
		if errors.As(err, &dlqErr) || ctx.Err() != nil {
			break
		}
		if attempts < h.opts.maxAttempts {
			h.sleep(ctx, h.opts.retryBackoff)
		}
	}

	h.logger.Error("kafka message handler error",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
		"attempts", attempts, "error", err)

	if ctx.Err() != nil {
		return false
	}
	if h.opts.dlq == nil || h.opts.dlqTopic == "" {
		return true
	}

	var dlqErr *DLQError
	if !errors.As(err, &dlqErr) {
		dlqErr = &DLQError{Err: err, Reason: "retries_exhausted"}
	}
	payload := BuildDLQPayload(msg, dlqErr, attempts)
	if _, _, pubErr := h.opts.dlq.PublishJSON(ctx, h.opts.dlqTopic, string(msg.Key), payload); pubErr != nil {
		h.logger.Error("consumer dlq publish failed", "topic", h.opts.dlqTopic, "error", pubErr)
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
