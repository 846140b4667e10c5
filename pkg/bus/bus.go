package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus publishes JSON events to NATS JetStream.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// StreamConfig describes the stream events are stored in.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// New connects to the NATS endpoint at url and opens a JetStream context.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// EnsureStream creates the stream described by cfg, or updates it when it exists with
// different subjects or retention. Publishes fail until a stream covers their subject.
func (b *Bus) EnsureStream(ctx context.Context, cfg StreamConfig) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if cfg.Name == "" || len(cfg.Subjects) == 0 {
		return errors.New("stream name and subjects are required")
	}

	info, err := b.js.StreamInfo(cfg.Name, nats.Context(ctx))
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:      cfg.Name,
			Subjects:  cfg.Subjects,
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			Discard:   nats.DiscardOld,
			MaxAge:    cfg.MaxAge,
		}, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("add stream %s: %w", cfg.Name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("stream info %s: %w", cfg.Name, err)
	}

	if slices.Equal(info.Config.Subjects, cfg.Subjects) && info.Config.MaxAge == cfg.MaxAge {
		return nil
	}
	updated := info.Config
	updated.Subjects = cfg.Subjects
	updated.MaxAge = cfg.MaxAge
	if _, err := b.js.UpdateStream(&updated, nats.Context(ctx)); err != nil {
		return fmt.Errorf("update stream %s: %w", cfg.Name, err)
	}
	return nil
}

// Close flushes pending publishes and shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and waits for the stream to acknowledge it.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx))
	return err
}
