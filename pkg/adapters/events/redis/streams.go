package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

const (
	// streamMaxLen caps each topic stream; older entries are trimmed
	// approximately so publishing stays O(1).
	streamMaxLen = 10000

	readBatch = 10
	readBlock = time.Second
)

// StreamsEventBus is an EventBus backed by Redis Streams. Every topic maps
// to one stream; subscribers join a shared consumer group so horizontally
// scaled servers split delivery instead of duplicating it.
type StreamsEventBus struct {
	client *redis.Client
	logger *zap.Logger
	group  string
	name   string
}

// NewStreamsEventBus creates an event bus for the given consumer group and
// consumer name. The name must be unique per process within the group.
func NewStreamsEventBus(client *redis.Client, group, name string, logger *zap.Logger) (*StreamsEventBus, error) {
	if group == "" || name == "" {
		return nil, errors.New("consumer group and name are required")
	}
	return &StreamsEventBus{client: client, logger: logger, group: group, name: name}, nil
}

// Publish appends the event to the topic's stream.
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	stream := streamKey(topic)
	err = e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("appending to stream %s: %w", stream, err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("topic", topic))
	return nil
}

// Subscribe registers the handler for a topic. Delivery runs on a background
// goroutine until ctx is cancelled; messages are acknowledged only after the
// handler returns nil.
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	stream := streamKey(topic)

	err := e.client.XGroupCreateMkStream(ctx, stream, e.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group on %s: %w", stream, err)
	}

	e.logger.Info("subscribed to event stream",
		zap.String("topic", topic),
		zap.String("group", e.group),
		zap.String("consumer", e.name))

	go e.consume(ctx, stream, handler)
	return nil
}

func (e *StreamsEventBus) consume(ctx context.Context, stream string, handler ports.EventHandler) {
	for ctx.Err() == nil {
		res, err := e.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    e.group,
			Consumer: e.name,
			Streams:  []string{stream, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			e.logger.Error("stream read failed",
				zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				e.deliver(ctx, stream, msg, handler)
			}
		}
	}
}

func (e *StreamsEventBus) deliver(ctx context.Context, stream string, msg redis.XMessage, handler ports.EventHandler) {
	fields := []zap.Field{zap.String("stream", stream), zap.String("message_id", msg.ID)}

	data, ok := msg.Values["data"].(string)
	if !ok {
		e.logger.Error("malformed stream entry", fields...)
		return
	}

	var event domain.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("undecodable event", append(fields, zap.Error(err))...)
		return
	}

	if err := handler(ctx, event); err != nil {
		// Left unacked so another consumer (or a restart) can retry.
		e.logger.Error("event handler failed", append(fields, zap.Error(err))...)
		return
	}

	if err := e.client.XAck(ctx, stream, e.group, msg.ID).Err(); err != nil {
		e.logger.Error("ack failed", append(fields, zap.Error(err))...)
	}
}

// Close is a no-op: the Redis client belongs to the caller and consumers
// exit with their subscription contexts.
func (e *StreamsEventBus) Close() error { return nil }

func streamKey(topic string) string {
	return "conduit:events:" + topic
}
