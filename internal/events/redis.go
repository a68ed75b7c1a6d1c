package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EventTypeListingPublished = "LISTING_PUBLISHED"
	DefaultStreamPrefix       = "stream:listings:"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStreamSink appends every message to the stream of its channel.
type RedisStreamSink struct {
	redis  RedisClient
	prefix string
	logger *slog.Logger
}

func NewRedisStreamSink(client RedisClient, prefix string, logger *slog.Logger) *RedisStreamSink {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &RedisStreamSink{
		redis:  client,
		prefix: prefix,
		logger: logger.With("component", "redis_sink"),
	}
}

func (s *RedisStreamSink) Stream(channel string) string {
	return s.prefix + channel
}

func (s *RedisStreamSink) Send(ctx context.Context, msg Message) error {
	images := make([]string, 0, len(msg.Media))
	for _, m := range msg.Media {
		images = append(images, m.URL)
	}

	now := time.Now()
	streamData := map[string]any{
		"id":        uuid.New().String(),
		"type":      EventTypeListingPublished,
		"timestamp": now.Format(time.RFC3339),
		"channel":   msg.Channel,
		"text":      msg.Text,
		"images":    images,
		"listing":   msg.Listing.WithoutEmbedding(),
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	values := map[string]any{
		"data":       string(dataJSON),
		"event_type": EventTypeListingPublished,
		"timestamp":  fmt.Sprintf("%d", now.UnixNano()),
	}
	if msg.Listing != nil {
		values["external_url"] = msg.Listing.ExternalURL
		values["source"] = msg.Listing.Source
	}

	args := &redis.XAddArgs{
		Stream: s.Stream(msg.Channel),
		Values: values,
	}

	id, err := s.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	s.logger.Debug("message appended", "stream", args.Stream, "entry_id", id)
	return nil
}

func (s *RedisStreamSink) Close() error {
	return s.redis.Close()
}
