// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package events publishes sync run summaries through Watermill.
//
// Each completed run is published as a JSON sync.RunSummary on
// {prefix}dataset.sync.completed or {prefix}dataset.sync.failed. Without a
// NATS URL the in-process gochannel Pub/Sub is used; with one, messages go
// to a JetStream stream with message-id deduplication.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

// Topic suffixes.
const (
	TopicCompleted = "dataset.sync.completed"
	TopicFailed    = "dataset.sync.failed"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event publisher is closed")

// Config configures the publisher.
type Config struct {
	// NATSURL selects JetStream; empty means in-process gochannel.
	NATSURL     string
	TopicPrefix string

	// Buffer is the gochannel per-subscriber output buffer.
	Buffer int64

	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher publishes run summaries. Safe for concurrent use.
type Publisher struct {
	publisher message.Publisher
	channel   *gochannel.GoChannel
	nc        *natsgo.Conn
	breaker   *gobreaker.CircuitBreaker[any]
	prefix    string
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "events",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// New creates a publisher for cfg.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "events"))

	if cfg.NATSURL == "" {
		buffer := cfg.Buffer
		if buffer <= 0 {
			buffer = 64
		}
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, logger)
		return &Publisher{
			publisher: ch,
			channel:   ch,
			breaker:   newBreaker(),
			prefix:    cfg.TopicPrefix,
			logger:    logger,
		}, nil
	}

	return newNATS(ctx, cfg, logger)
}

func newNATS(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	nc, err := natsgo.Connect(cfg.NATSURL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if err := EnsureStream(ctx, js, DefaultStreamConfig(cfg.TopicPrefix)); err != nil {
		nc.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false, // created by EnsureStream
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		nc:        nc,
		breaker:   newBreaker(),
		prefix:    cfg.TopicPrefix,
		logger:    logger,
	}, nil
}

// NewWithPublisher wraps an existing Watermill publisher.
func NewWithPublisher(pub message.Publisher, prefix string) *Publisher {
	return &Publisher{
		publisher: pub,
		breaker:   newBreaker(),
		prefix:    prefix,
		logger:    watermill.NopLogger{},
	}
}

// Topic returns the topic for a run summary.
func (p *Publisher) Topic(s nsync.RunSummary) string {
	if s.Failed() {
		return p.prefix + TopicFailed
	}
	return p.prefix + TopicCompleted
}

// Publish sends s. The run id is used as the message UUID so JetStream can
// drop duplicates.
func (p *Publisher) Publish(ctx context.Context, s nsync.RunSummary) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("serialize run: %w", err)
	}

	id := s.RunID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, id)
	msg.Metadata.Set("dataset", s.Dataset)
	msg.Metadata.Set("state", s.State)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set("correlation_id", cid)
	}
	msg.SetContext(ctx)

	topic := p.Topic(s)
	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	metrics.RecordEventPublish(topic, err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// OnRunCompleted publishes res. Publish failures are logged and never
// affect the run.
func (p *Publisher) OnRunCompleted(ctx context.Context, res nsync.RunResult) {
	if err := p.Publish(ctx, res.Summary()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("dataset", res.Dataset).Msg("Failed to publish run event")
	}
}

// Subscribe returns messages published on a topic. Only the in-process
// gochannel publisher supports it.
func (p *Publisher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if p.channel == nil {
		return nil, errors.New("subscribe is only supported by the in-process publisher")
	}
	return p.channel.Subscribe(ctx, topic)
}

// Close shuts the publisher down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.publisher.Close()
	if p.nc != nil {
		p.nc.Close()
	}
	return err
}
