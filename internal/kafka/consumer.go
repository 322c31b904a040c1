package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
)

// VoteHandler records votes delivered by the consumer
type VoteHandler interface {
	CastVoteBatch(ctx context.Context, batch domain.BatchVotes) int
}

// Consumer consumes vote messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       VoteHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler VoteHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start joins the consumer group and blocks until the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka vote consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

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

	<-c.ready
	c.logger.Info("Kafka vote consumer ready")

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
	c.logger.Info("stopping Kafka vote consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
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

// ConsumeClaim batches votes from a partition and hands them to the handler
// when the batch fills up or the batch timeout fires.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger
	batch := make([]domain.Vote, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		accepted := h.consumer.handler.CastVoteBatch(ctx, domain.BatchVotes{Votes: batch})
		logger.Debug("processed vote batch", "batch_size", len(batch), "accepted", accepted)

		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			vote, err := DecodeVote(message.Value, message.Timestamp)
			if err != nil {
				logger.Warn("dropping undecodable vote message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, vote)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// VoteMessage is the wire format of a vote on the votes topic
type VoteMessage struct {
	MatchID string `json:"match_id"`
	UserID  string `json:"user_id"`
	Choice  int    `json:"choice"`
	CastAt  int64  `json:"cast_at,omitempty"`
}

// Encode serializes the message for the producer
func (m VoteMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeVote parses a vote message. cast_at is epoch milliseconds; when it is
// absent the broker timestamp is used.
func DecodeVote(value []byte, brokerTime time.Time) (domain.Vote, error) {
	var msg VoteMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.Vote{}, err
	}

	vote := domain.Vote{
		MatchID: msg.MatchID,
		UserID:  msg.UserID,
		Choice:  domain.Choice(msg.Choice),
		CastAt:  brokerTime,
	}
	if msg.CastAt > 0 {
		vote.CastAt = time.UnixMilli(msg.CastAt)
	}
	if err := vote.Validate(); err != nil {
		return domain.Vote{}, err
	}
	return vote, nil
}
