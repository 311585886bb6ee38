// ABOUTME: Store appends session logs and fetches them back from channel history
// ABOUTME: Untagged and malformed messages are skipped and counted

package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/metrics"
	"github.com/2389/coven-timekeeper/internal/migrate"
	"github.com/2389/coven-timekeeper/internal/model"
)

// Marker prefixes the JSON record in a message payload.
const Marker = "LOG_ID:"

// Store appends and reads session logs.
type Store struct {
	store   *channel.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	loc     *time.Location
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLocation sets the zone used for naive timestamps and record dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a Store over store.
func New(store *channel.Store, opts ...Option) *Store {
	s := &Store{
		store:  store,
		logger: slog.Default(),
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "logstore")
	return s
}

// Location returns the zone records are dated in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Append posts log to ch with its summary as content and the tagged JSON
// record as payload.
func (s *Store) Append(ctx context.Context, ch channel.ID, log model.SessionLog) (channel.Message, error) {
	log, err := s.complete(log)
	if err != nil {
		return channel.Message{}, err
	}
	payload, err := encode(log)
	if err != nil {
		return channel.Message{}, err
	}
	msg, err := s.store.Send(ctx, ch, Summary(log), payload)
	if err != nil {
		return channel.Message{}, fmt.Errorf("appending log for %s: %w", log.Task, err)
	}
	s.metrics.RecordSession(log.Task)
	return msg, nil
}

// AppendWithMirror writes the authoritative record to data and then a
// summary-only copy to mirror. Only the data copy is ever read back. If the
// mirror write fails the record is still stored and the error is returned.
func (s *Store) AppendWithMirror(ctx context.Context, data, mirror channel.ID, log model.SessionLog) (channel.Message, error) {
	msg, err := s.Append(ctx, data, log)
	if err != nil {
		return channel.Message{}, err
	}
	if mirror == "" || mirror == data {
		return msg, nil
	}
	log, _ = s.complete(log)
	if _, err := s.store.Send(ctx, mirror, Summary(log), ""); err != nil {
		return msg, fmt.Errorf("mirroring log for %s: %w", log.Task, err)
	}
	return msg, nil
}

// Fetch returns up to limit records from the newest limit messages of ch,
// newest first. Messages without the marker or with an unreadable record are
// skipped.
func (s *Store) Fetch(ctx context.Context, ch channel.ID, limit int) ([]model.SessionLog, error) {
	msgs, err := s.store.FetchHistory(ctx, ch, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching logs: %w", err)
	}

	logs := make([]model.SessionLog, 0, len(msgs))
	for _, msg := range msgs {
		body, ok := strings.CutPrefix(msg.Payload, Marker)
		if !ok {
			continue
		}
		log, ok := migrate.DecodeSessionLog(json.RawMessage(body), s.loc)
		if !ok {
			s.logger.Warn("skipping malformed log record", "channel", ch, "message", msg.ID)
			s.metrics.RecordSkipped("log")
			continue
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// complete validates log and fills the derived fields.
func (s *Store) complete(log model.SessionLog) (model.SessionLog, error) {
	log.Task = strings.TrimSpace(log.Task)
	if log.Task == "" {
		return log, model.Invalid("task", "must not be empty")
	}
	if log.DurationMin < 0 {
		return log, model.Invalid("duration_min", "must not be negative, got %d", log.DurationMin)
	}
	if log.EndedAt.IsZero() {
		return log, model.Invalid("timestamp", "must be set")
	}
	log.EndedAt = log.EndedAt.In(s.loc)
	if log.DurationLabel == "" {
		log.DurationLabel = model.FormatDuration(log.DurationMin)
	}
	if log.Date == "" {
		log.Date = log.EndedAt.Format(model.DateLayout)
	}
	return log, nil
}

func encode(log model.SessionLog) (string, error) {
	b, err := json.Marshal(log)
	if err != nil {
		return "", fmt.Errorf("encoding log: %w", err)
	}
	return Marker + string(b), nil
}

// Summary renders the human-readable line posted with a record.
func Summary(log model.SessionLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** %s", log.Task, log.DurationLabel)
	if log.Date != "" {
		fmt.Fprintf(&b, " (%s, ended %s)", log.Date, log.EndedAt.Format("15:04"))
	}
	if memo := strings.TrimSpace(log.Memo); memo != "" {
		fmt.Fprintf(&b, "\n> %s", memo)
	}
	return b.String()
}
