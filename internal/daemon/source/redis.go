package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "tdm:events"

// Message is the pub/sub payload understood by RedisSource.
type Message struct {
	Collection string `json:"collection"`
	UpdateType string `json:"update_type,omitempty"`
}

// RedisOptions configures a RedisSource.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisSource receives update events published on a Redis channel by
// other hosts.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  *logrus.Entry
}

// NewRedisSource creates a RedisSource. The connection is opened lazily.
func NewRedisSource(opts RedisOptions, logger *logrus.Entry) *RedisSource {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		channel: channel,
		logger:  logger,
	}
}

// Name implements Source.
func (r *RedisSource) Name() string { return "redis" }

// Channel returns the subscribed channel.
func (r *RedisSource) Channel() string { return r.channel }

// Close releases the connection pool. Run closes it on return.
func (r *RedisSource) Close() error {
	return r.client.Close()
}

// Run implements Source.
func (r *RedisSource) Run(ctx context.Context, handler Handler) error {
	defer r.client.Close()

	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.WithField("channel", r.channel).Info("Subscribed to update channel")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeMessage([]byte(msg.Payload))
			if err != nil {
				r.logger.WithError(err).WithField("payload", msg.Payload).Warn("Skipping malformed update message")
				continue
			}
			ev.Source = r.Name()
			handler(ev)
		}
	}
}

// Publish sends an update event for collection on the source's channel.
func (r *RedisSource) Publish(ctx context.Context, collection string, updateType models.UpdateType) error {
	return Publish(ctx, r.client, r.channel, collection, updateType)
}

// Publish sends an update message on channel using client.
func Publish(ctx context.Context, client *redis.Client, channel, collection string, updateType models.UpdateType) error {
	data, err := json.Marshal(Message{Collection: collection, UpdateType: string(updateType)})
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, string(data)).Err()
}

// DecodeMessage parses a pub/sub payload into an event. An empty update
// type is left empty so the collection's configured type applies.
func DecodeMessage(payload []byte) (models.UpdateEvent, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.UpdateEvent{}, fmt.Errorf("invalid message: %w", err)
	}
	msg.Collection = strings.TrimSpace(msg.Collection)
	if msg.Collection == "" {
		return models.UpdateEvent{}, fmt.Errorf("message has no collection")
	}

	var ut models.UpdateType
	if msg.UpdateType != "" {
		parsed, err := models.ParseUpdateType(msg.UpdateType)
		if err != nil {
			return models.UpdateEvent{}, err
		}
		ut = parsed
	}
	return models.NewUpdateEvent(msg.Collection, ut, ""), nil
}
