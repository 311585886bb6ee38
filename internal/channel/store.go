// ABOUTME: Store wraps a Platform with idempotent channel resolution and bounded reads
// ABOUTME: Logs recoverable permission failures and counts platform call outcomes

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/coven-timekeeper/internal/metrics"
)

// Default limits.
const (
	DefaultPinLimit     = 50
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 10000
)

// Store is the channel-backed storage primitive used by the registry and the
// log store. It holds no locks and is safe for concurrent use if the Platform is.
type Store struct {
	platform   Platform
	logger     *slog.Logger
	metrics    *metrics.Metrics
	pinLimit   int
	maxHistory int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger.With("component", "channel") }
}

// WithMetrics wires platform call counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithPinLimit caps ListPinned results.
func WithPinLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pinLimit = n
		}
	}
}

// WithMaxHistory caps the limit any single FetchHistory call may request.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// NewStore creates a Store over platform.
func NewStore(platform Platform, opts ...Option) *Store {
	s := &Store{
		platform:   platform,
		logger:     slog.Default().With("component", "channel"),
		pinLimit:   DefaultPinLimit,
		maxHistory: MaxHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOrCreate returns the channel named name in guild, creating it with
// opts if it does not exist yet. Calling it repeatedly never creates duplicates.
func (s *Store) ResolveOrCreate(ctx context.Context, guild, name string, opts Options) (Channel, error) {
	ch, err := s.platform.FindChannel(ctx, guild, name)
	if err == nil {
		s.metrics.RecordPlatformCall("find", nil)
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.metrics.RecordPlatformCall("find", err)
		return Channel{}, fmt.Errorf("finding channel %q: %w", name, err)
	}
	s.metrics.RecordPlatformCall("find", nil)

	ch, err = s.platform.CreateChannel(ctx, guild, name, opts)
	s.metrics.RecordPlatformCall("create", err)
	if err != nil {
		s.warnIfDenied("create", err, "channel", name)
		return Channel{}, fmt.Errorf("creating channel %q: %w", name, err)
	}

	s.logger.Info("created channel",
		"guild", guild,
		"name", name,
		"id", ch.ID,
		"hidden", opts.Hidden,
		"write_restricted", opts.WriteRestricted,
	)
	return ch, nil
}

// Send posts a message with an optional payload.
func (s *Store) Send(ctx context.Context, ch ID, content, payload string) (Message, error) {
	if ch == "" {
		return Message{}, fmt.Errorf("sending message: empty channel id")
	}
	msg, err := s.platform.SendMessage(ctx, ch, content, payload)
	s.metrics.RecordPlatformCall("send", err)
	if err != nil {
		s.warnIfDenied("send", err, "channel", ch)
		return Message{}, fmt.Errorf("sending message to %s: %w", ch, err)
	}
	return msg, nil
}

// EditContent replaces msg's content in place.
func (s *Store) EditContent(ctx context.Context, msg Message, content string) error {
	err := s.platform.EditMessage(ctx, msg.ChannelID, msg.ID, content)
	s.metrics.RecordPlatformCall("edit", err)
	if err != nil {
		s.warnIfDenied("edit", err, "message", msg.ID)
		return fmt.Errorf("editing message %s: %w", msg.ID, err)
	}
	return nil
}

// Pin pins msg. A permission failure is logged and returned wrapping
// ErrPermissionDenied so callers can decide to continue.
func (s *Store) Pin(ctx context.Context, msg Message) error {
	err := s.platform.PinMessage(ctx, msg.ChannelID, msg.ID)
	s.metrics.RecordPlatformCall("pin", err)
	if err != nil {
		s.warnIfDenied("pin", err, "message", msg.ID)
		return fmt.Errorf("pinning message %s: %w", msg.ID, err)
	}
	return nil
}

// ListPinned returns the pinned messages of ch, most recently pinned first,
// capped at the pin limit.
func (s *Store) ListPinned(ctx context.Context, ch ID) ([]Message, error) {
	pins, err := s.platform.PinnedMessages(ctx, ch)
	s.metrics.RecordPlatformCall("pins", err)
	if err != nil {
		return nil, fmt.Errorf("listing pins of %s: %w", ch, err)
	}
	if len(pins) > s.pinLimit {
		pins = pins[:s.pinLimit]
	}
	return pins, nil
}

// FetchHistory returns up to limit messages of ch, newest first. A
// non-positive limit means DefaultHistoryLimit. Nothing older than the limit
// is returned, so the result is not a complete scan.
func (s *Store) FetchHistory(ctx context.Context, ch ID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > s.maxHistory {
		limit = s.maxHistory
	}

	msgs, err := s.platform.History(ctx, ch, limit)
	s.metrics.RecordPlatformCall("history", err)
	if err != nil {
		return nil, fmt.Errorf("fetching history of %s: %w", ch, err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Purge deletes up to limit of the newest messages in ch.
func (s *Store) Purge(ctx context.Context, ch ID, limit int) error {
	err := s.platform.PurgeMessages(ctx, ch, limit)
	s.metrics.RecordPlatformCall("purge", err)
	if err != nil {
		s.warnIfDenied("purge", err, "channel", ch)
		return fmt.Errorf("purging %s: %w", ch, err)
	}
	return nil
}

func (s *Store) warnIfDenied(op string, err error, key string, value any) {
	if !errors.Is(err, ErrPermissionDenied) {
		return
	}
	s.metrics.RecordPermissionDenied(op)
	s.logger.Warn("permission denied", "op", op, key, value, "error", err)
}
