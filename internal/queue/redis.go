package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/upishield/fraud-screening/configs"
	"github.com/upishield/fraud-screening/internal/models"
)

// DecisionStreamClient publishes and consumes decision events on a Redis
// Stream. Publication is fire and forget from the scorer's point of view;
// consumers read through a consumer group so restarts do not lose events.
type DecisionStreamClient struct {
	client        *redis.Client
	streamName    string
	consumerGroup string
}

// NewDecisionStreamClient creates a new decision stream client
func NewDecisionStreamClient(cfg configs.RedisConfig) (*DecisionStreamClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	dsc := &DecisionStreamClient{
		client:        client,
		streamName:    cfg.StreamName,
		consumerGroup: cfg.ConsumerGroup,
	}

	if err := dsc.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Consumer group may already exist")
	}

	log.Info().Str("stream", cfg.StreamName).Msg("Decision stream client initialized")
	return dsc, nil
}

func (d *DecisionStreamClient) createConsumerGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.streamName, d.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// PublishDecision publishes a decision event to the stream.
func (d *DecisionStreamClient) PublishDecision(ctx context.Context, event *models.DecisionEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID, err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.streamName,
		Values: map[string]interface{}{
			"data": string(eventJSON),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("message_id", msgID).
		Str("transaction_id", event.TransactionID).
		Msg("Decision event published")

	return nil
}

// StreamMessage is one consumed decision event with its stream id.
type StreamMessage struct {
	ID    string
	Event *models.DecisionEvent
}

// Consume reads decision events for this consumer, blocking up to
// blockDuration. A nil slice with nil error means no messages arrived.
func (d *DecisionStreamClient) Consume(ctx context.Context, consumerName string, count int64, blockDuration time.Duration) ([]StreamMessage, error) {
	streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    d.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{d.streamName, ">"},
		Count:    count,
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			event, err := parseDecisionMessage(msg)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to parse message")
				continue
			}
			messages = append(messages, StreamMessage{ID: msg.ID, Event: event})
		}
	}
	return messages, nil
}

func parseDecisionMessage(msg redis.XMessage) (*models.DecisionEvent, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format")
	}

	var event models.DecisionEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Acknowledge marks a message as processed.
func (d *DecisionStreamClient) Acknowledge(ctx context.Context, messageID string) error {
	if _, err := d.client.XAck(ctx, d.streamName, d.consumerGroup, messageID).Result(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// PendingCount returns the number of delivered but unacknowledged messages.
func (d *DecisionStreamClient) PendingCount(ctx context.Context) (int64, error) {
	pending, err := d.client.XPending(ctx, d.streamName, d.consumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

// Close closes the Redis client
func (d *DecisionStreamClient) Close() error {
	return d.client.Close()
}

// CacheClient provides caching and counter operations
type CacheClient struct {
	client      *redis.Client
	decisionTTL time.Duration
}

// NewCacheClient creates a new cache client (shares Redis connection)
func NewCacheClient(cfg configs.RedisConfig) (*CacheClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{client: client, decisionTTL: cfg.CacheTTL}, nil
}

func decisionKey(transactionID string) string {
	return fmt.Sprintf("decision:%s", transactionID)
}

// GetDecision retrieves a cached decision. A cache miss returns (nil, nil).
func (c *CacheClient) GetDecision(ctx context.Context, transactionID string) (*models.ScoreResponse, error) {
	data, err := c.client.Get(ctx, decisionKey(transactionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var resp models.ScoreResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetDecision caches a decision for the configured TTL.
func (c *CacheClient) SetDecision(ctx context.Context, transactionID string, resp *models.ScoreResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, decisionKey(transactionID), data, c.decisionTTL).Err()
}

// Set sets a value in the cache
func (c *CacheClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value from the cache
func (c *CacheClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes a key from the cache
func (c *CacheClient) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// HIncrBy increments a hash field by a given amount
func (c *CacheClient) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return c.client.HIncrBy(ctx, key, field, incr).Result()
}

// HGetAll gets all fields from a hash
func (c *CacheClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// Close closes the cache client
func (c *CacheClient) Close() error {
	return c.client.Close()
}
