// Package queue is the in-process job queue. Modules publish JSON events to
// topics; consumers run on a watermill router with retry and panic recovery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	hmsmw "github.com/jashmhta/HMSSSS-sub000/internal/platform/middleware"
)

const (
	metaRequestID = "request_id"
	metaKey       = "key"
	metaTopic     = "topic"
)

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// HandlerFunc consumes one JSON payload. A returned error triggers retries.
type HandlerFunc func(ctx context.Context, payload []byte) error

type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	BufferSize      int64
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, InitialInterval: 100 * time.Millisecond, BufferSize: 256}
}

// Stats counts messages since start.
type Stats struct {
	Published int64 `json:"published"`
	Handled   int64 `json:"handled"`
	Dropped   int64 `json:"dropped"`
}

type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger zerolog.Logger

	published atomic.Int64
	handled   atomic.Int64
	dropped   atomic.Int64
}

func NewBus(cfg Config, logger zerolog.Logger) (*Bus, error) {
	logger = logger.With().Str("component", "queue").Logger()
	wmLogger := NewLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.BufferSize}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	b := &Bus{pubsub: pubsub, router: router, logger: logger}

	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		Logger:          wmLogger,
	}
	// Outermost first: failures that survive retries are logged and acked so
	// the in-memory channel does not redeliver them forever.
	router.AddMiddleware(b.dropFailed, retry.Middleware, middleware.Recoverer)
	return b, nil
}

func (b *Bus) dropFailed(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			b.dropped.Add(1)
			b.logger.Error().Err(err).
				Str("topic", msg.Metadata.Get(metaTopic)).
				Str("message_id", msg.UUID).
				Str("request_id", msg.Metadata.Get(metaRequestID)).
				Msg("message dropped after retries")
			return nil, nil
		}
		b.handled.Add(1)
		return out, nil
	}
}

// Publish JSON-encodes v and publishes it on topic. The request id in ctx
// travels as metadata.
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaTopic, topic)
	if rid := hmsmw.RequestIDFromContext(ctx); rid != "" {
		msg.Metadata.Set(metaRequestID, rid)
	}
	if k, ok := v.(Keyed); ok {
		msg.Metadata.Set(metaKey, k.EventKey())
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.published.Add(1)
	return nil
}

// Handle registers a consumer. Call before Run.
func (b *Bus) Handle(name, topic string, fn HandlerFunc) {
	b.handleMessage(name, topic, func(msg *message.Message) error {
		return fn(messageContext(msg), msg.Payload)
	})
}

func (b *Bus) handleMessage(name, topic string, fn func(msg *message.Message) error) {
	b.router.AddNoPublisherHandler(name, topic, b.pubsub, fn)
}

func messageContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	if rid := msg.Metadata.Get(metaRequestID); rid != "" {
		ctx = hmsmw.WithRequestID(ctx, rid)
	}
	return ctx
}

// Run starts the consumers and blocks until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every consumer is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Handled:   b.handled.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Decode is a helper for consumers.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}
