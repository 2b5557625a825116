// Package kafka ingests score submissions from a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/snake-arena/internal/config"
	"github.com/snake-arena/internal/domain"
)

// ScoreHandler processes score submissions
type ScoreHandler interface {
	SubmitScore(ctx context.Context, username string, mode domain.GameMode, score int64) (domain.SubmitResult, error)
}

// ScoreMessage is the JSON value of a score message
type ScoreMessage struct {
	Username string `json:"username"`
	Mode     string `json:"mode"`
	Score    int64  `json:"score"`
}

// Submission is a decoded, validated ScoreMessage
type Submission struct {
	Username string
	Mode     domain.GameMode
	Score    int64
}

// DecodeScoreMessage parses and validates a message value
func DecodeScoreMessage(data []byte) (Submission, error) {
	var msg ScoreMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if msg.Username == "" {
		return Submission{}, fmt.Errorf("%w: username required", domain.ErrInvalidRequest)
	}
	mode, err := domain.ParseGameMode(msg.Mode)
	if err != nil {
		return Submission{}, err
	}
	if msg.Score < 0 {
		return Submission{}, domain.ErrInvalidScore
	}
	return Submission{Username: msg.Username, Mode: mode, Score: msg.Score}, nil
}

const rejoinBackoff = 2 * time.Second

// Consumer feeds score messages from a Kafka consumer group into a
// ScoreHandler. Offsets are marked only after a batch has been submitted.
type Consumer struct {
	config        *config.KafkaConfig
	handler       ScoreHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler ScoreHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger.With("component", "kafka", "topic", cfg.Topic),
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}, nil
}

// Start joins the consumer group in the background and blocks until the
// first session is set up or ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting score consumer",
		"brokers", c.config.Brokers,
		"group_id", c.config.GroupID,
		"batch_size", c.config.BatchSize,
	)

	c.wg.Add(2)
	go c.consume()
	go c.logErrors()

	select {
	case <-c.ready:
		c.logger.Info("score consumer ready")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for kafka consumer: %w", ctx.Err())
	}
}

// consume rejoins the group after every rebalance until the consumer stops.
// A session ended because the store was unavailable is rejoined after a
// backoff; uncommitted messages are then delivered again.
func (c *Consumer) consume() {
	defer c.wg.Done()
	topics := []string{c.config.Topic}
	for c.ctx.Err() == nil {
		sessionCtx, endSession := context.WithCancel(c.ctx)
		handler := &consumerGroupHandler{consumer: c, endSession: endSession}
		err := c.consumerGroup.Consume(sessionCtx, topics, handler)
		endSession()

		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return
		case err != nil:
			c.logger.Error("consume session ended", "error", err)
		case !handler.stalled.Load():
			continue
		}

		select {
		case <-c.ctx.Done():
		case <-time.After(rejoinBackoff):
		}
	}
}

func (c *Consumer) logErrors() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.consumerGroup.Errors():
			if !ok {
				return
			}
			c.logger.Error("consumer group error", "error", err)
		}
	}
}

// Stop leaves the group after in-flight batches finish
func (c *Consumer) Stop() error {
	c.logger.Info("stopping score consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

type consumerGroupHandler struct {
	consumer   *Consumer
	endSession context.CancelFunc
	stalled    atomic.Bool
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.readyOnce.Do(func() { close(h.consumer.ready) })
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// submitBatch submits each decoded message in order. Rejected scores are
// normal outcomes. A retryable failure stops the batch and is returned so
// the caller leaves the offsets unmarked; redelivered scores that were
// already stored come back rejected, since an equal score never replaces
// a best.
func (c *Consumer) submitBatch(ctx context.Context, batch []Submission) (accepted, rejected, failed int, err error) {
	for _, sub := range batch {
		result, err := c.handler.SubmitScore(ctx, sub.Username, sub.Mode, sub.Score)
		if err != nil {
			if domain.IsUnavailable(err) {
				return accepted, rejected, failed, err
			}
			c.logger.Error("dropping score message",
				"username", sub.Username,
				"mode", sub.Mode,
				"score", sub.Score,
				"error", err,
			)
			failed++
			continue
		}
		if _, ok := result.(domain.ScoreAccepted); ok {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected, failed, nil
}

// ConsumeClaim collects decoded submissions into batches of BatchSize,
// flushing early after BatchTimeout. Invalid messages are skipped. When the
// store is unavailable the claim ends without marking the batch, so the
// messages are consumed again once the group rejoins.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger

	batch := make([]Submission, 0, cfg.BatchSize)
	var first, last *sarama.ConsumerMessage
	timer := time.NewTimer(cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() error {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(session.Context()), 10*time.Second)
			accepted, rejected, failed, err := h.consumer.submitBatch(ctx, batch)
			cancel()
			if err != nil {
				h.stalled.Store(true)
				h.endSession()
				logger.Error("score batch not committed, will be redelivered",
					"size", len(batch),
					"partition", first.Partition,
					"first_offset", first.Offset,
					"last_offset", last.Offset,
					"error", err,
				)
				return err
			}
			logger.Debug("submitted batch",
				"size", len(batch),
				"accepted", accepted,
				"rejected", rejected,
				"failed", failed,
			)
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			first, last = nil, nil
		}
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			return flush()

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
			timer.Reset(cfg.BatchTimeout)

		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			if first == nil {
				first = msg
			}
			last = msg

			sub, err := DecodeScoreMessage(msg.Value)
			if err != nil {
				logger.Warn("skipping invalid score message",
					"error", err,
					"partition", msg.Partition,
					"offset", msg.Offset,
				)
				continue
			}
			batch = append(batch, sub)

			if len(batch) >= cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
				timer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
