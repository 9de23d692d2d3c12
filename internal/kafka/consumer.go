package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/samber/lo"

	"github.com/humanwheel-leaderboard/internal/config"
	"github.com/humanwheel-leaderboard/internal/domain"
)

// PlayerWriter stores a player submission
type PlayerWriter interface {
	AddOrUpdatePlayer(ctx context.Context, submission domain.PlayerSubmission) (domain.PlayerRecord, error)
}

// Consumer consumes wheel speed readings from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	writer        PlayerWriter
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, writer PlayerWriter, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		writer:        writer,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{consumer: c, ready: c.ready}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
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
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// DecodeReading parses a message value into a reading that identifies a
// player. Readings without player_id, name or category are rejected.
func DecodeReading(value []byte) (domain.SpeedReading, error) {
	var reading domain.SpeedReading
	if err := json.Unmarshal(value, &reading); err != nil {
		return domain.SpeedReading{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	sub := reading.Submission()
	sub.Normalize()
	if sub.ID == "" || sub.Name == "" || sub.Category == "" {
		return domain.SpeedReading{}, domain.ErrMissingFields
	}
	if !domain.ValidCategory(sub.Category) {
		return domain.SpeedReading{}, domain.ErrInvalidCategory
	}
	return reading, nil
}

// latestPerPlayer keeps only the last reading per storage key, in arrival
// order. Earlier readings would be overwritten anyway.
func latestPerPlayer(batch []domain.SpeedReading) []domain.SpeedReading {
	key := func(r domain.SpeedReading) string {
		return domain.NormalizeCategory(r.Category) + "_" + r.PlayerID
	}
	lastIndex := make(map[string]int, len(batch))
	for i, r := range batch {
		lastIndex[key(r)] = i
	}
	return lo.Filter(batch, func(r domain.SpeedReading, i int) bool {
		return lastIndex[key(r)] == i
	})
}

// writeBatch stores the batch and returns how many readings were written
func (c *Consumer) writeBatch(ctx context.Context, batch []domain.SpeedReading) int {
	written := 0
	for _, reading := range latestPerPlayer(batch) {
		if _, err := c.writer.AddOrUpdatePlayer(ctx, reading.Submission()); err != nil {
			if domain.IsValidationError(err) {
				c.logger.Warn("skipping invalid reading", "player_id", reading.PlayerID, "error", err)
			} else {
				c.logger.Error("failed to store reading", "player_id", reading.PlayerID, "error", err)
			}
			continue
		}
		written++
	}
	return written
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim batches readings from a partition. Offsets are marked once
// the batch holding them has been written.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger

	batch := make([]domain.SpeedReading, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			written := h.consumer.writeBatch(ctx, batch)
			cancel()
			logger.Debug("processed batch", "batch_size", len(batch), "written", written)
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
	}

	for {
		select {
		case <-session.Context().Done():
			flush()
			return nil

		case <-batchTimer.C:
			flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			last = message

			reading, err := DecodeReading(message.Value)
			if err != nil {
				logger.Warn("skipping invalid message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			batch = append(batch, reading)
			if len(batch) >= cfg.BatchSize {
				flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
