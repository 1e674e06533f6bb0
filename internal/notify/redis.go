package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/internal/constants"
	"github.com/actual-software/chat-bridge/pkg/common/logging"
	"github.com/actual-software/chat-bridge/pkg/wire"
)

const pingTimeout = 5 * time.Second

// RedisConfig configures the Redis fan-out.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Channel  string
}

// Event is the payload published for each inbound message.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Type       string    `json:"type"`
	GroupID    string    `json:"group_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Message    string    `json:"message,omitempty"`
	File       string    `json:"file,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// RedisPublisher publishes every inbound message to a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = constants.DefaultRedisChannel
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With(zap.String(logging.FieldComponent, "redis_publisher")),
		now:     time.Now,
	}, nil
}

// Alert publishes msg as an Event.
func (p *RedisPublisher) Alert(ctx context.Context, msg *wire.InboundMessage) error {
	payload, err := json.Marshal(Event{
		ID:         msg.ID,
		Type:       msg.Type,
		GroupID:    msg.GroupID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Message:    msg.Message,
		File:       msg.File,
		ReceivedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published message event",
		zap.String("redis_channel", p.channel),
		zap.Int64("receivers", receivers))

	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
