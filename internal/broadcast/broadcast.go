// Package broadcast delivers real-time events to location and admin channels.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

type Broadcaster interface {
	Publish(ctx context.Context, channel string, event string, payload any) error
}

// Envelope is the wire shape of every published event.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(channel, event string, payload any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Channel: channel, SentAt: at.UTC(), Payload: raw})
}

type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error {
	return nil
}

// Log writes events to a logger; used when no Redis is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, channel string, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "broadcast",
		slog.String("channel", channel),
		slog.String("event", event),
		slog.Int("payload_bytes", len(raw)),
	)
	return nil
}
