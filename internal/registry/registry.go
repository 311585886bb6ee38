// ABOUTME: Registry loads and saves tagged config records over a channel store
// ABOUTME: Records are normalized through the migrator on every load

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/clock"
	"github.com/2389/coven-timekeeper/internal/metrics"
	"github.com/2389/coven-timekeeper/internal/migrate"
	"github.com/2389/coven-timekeeper/internal/model"
)

// Tag is the literal prefix that marks a config record's content.
type Tag string

const (
	TagTasks Tag = "CONFIG_TASKS:"
	TagGoals Tag = "CONFIG_GOALS:"
)

// ErrUnpinned reports a record that was written but could not be pinned. It
// is always joined with the underlying channel.ErrPermissionDenied.
var ErrUnpinned = errors.New("config record written but not pinned")

// DefaultTasks is used when no task list is configured.
var DefaultTasks = []model.Task{
	{Name: "Study", Style: model.StylePrimary},
	{Name: "Work", Style: model.StyleSuccess},
	{Name: "Exercise", Style: model.StyleDanger},
}

// Registry reads and writes config records. It holds no state between calls.
type Registry struct {
	store        *channel.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	clock        clock.Clock
	loc          *time.Location
	defaultTasks []model.Task
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLocation sets the zone for goal timestamps stored without an offset.
// The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithDefaultTasks sets the task list written on first load.
func WithDefaultTasks(tasks []model.Task) Option {
	return func(r *Registry) {
		if len(tasks) > 0 {
			r.defaultTasks = tasks
		}
	}
}

// New creates a Registry backed by store.
func New(store *channel.Store, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		logger:       slog.Default(),
		clock:        clock.Real(),
		loc:          time.Local,
		defaultTasks: DefaultTasks,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Load returns the payload of the record tagged tag in ch. When no readable
// record exists, a default record is written and pinned first. A pin that
// fails for lack of permission is logged and the default is still returned;
// later loads find the unpinned record in recent history.
func (r *Registry) Load(ctx context.Context, ch channel.ID, tag Tag) (json.RawMessage, error) {
	rec, err := r.scan(ctx, ch, tag)
	if err != nil {
		return nil, err
	}
	if rec.valid {
		return r.normalize(tag, rec.payload), nil
	}

	payload, err := r.defaultPayload(tag)
	if err != nil {
		return nil, err
	}
	if rec.found {
		// A tagged record exists but is unreadable; overwrite it rather than add a second one.
		if err := r.store.EditContent(ctx, rec.msg, string(tag)+string(payload)); err != nil {
			return nil, fmt.Errorf("resetting %s record: %w", tag, err)
		}
		return r.normalize(tag, payload), nil
	}

	if err := r.create(ctx, ch, tag, payload); err != nil {
		if !errors.Is(err, ErrUnpinned) {
			return nil, err
		}
		r.logger.Warn("config record left unpinned", "tag", string(tag), "channel", ch, "error", err)
	}
	r.logger.Info("initialized config record", "tag", string(tag), "channel", ch)
	return r.normalize(tag, payload), nil
}

// Save writes payload as the record tagged tag, editing the existing record
// in place or creating and pinning a new one. If the record cannot be pinned
// the content is still written and the returned error wraps ErrUnpinned and
// channel.ErrPermissionDenied: the record is then only readable while it is
// within recent history.
func (r *Registry) Save(ctx context.Context, ch channel.ID, tag Tag, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return model.Invalid(string(tag), "payload is not valid JSON")
	}
	rec, err := r.scan(ctx, ch, tag)
	if err != nil {
		return err
	}
	if !rec.found {
		return r.create(ctx, ch, tag, payload)
	}
	if err := r.store.EditContent(ctx, rec.msg, string(tag)+string(payload)); err != nil {
		return fmt.Errorf("saving %s record: %w", tag, err)
	}
	if !rec.pinned {
		return r.pin(ctx, tag, rec.msg)
	}
	return nil
}

// record is the outcome of scanning pins for a tag.
type record struct {
	msg     channel.Message
	payload json.RawMessage
	found   bool // a message carries the tag
	valid   bool // and its payload parsed
	pinned  bool
}

// historyScan bounds the fallback search for records that could not be pinned.
const historyScan = 100

// scan looks through pins for the first message tagged tag. The first tagged
// message is remembered even if unreadable so that writes never add a second
// tagged record; the first readable one supplies the payload. With no tagged
// pin, recent history is searched newest-first for a record left unpinned.
func (r *Registry) scan(ctx context.Context, ch channel.ID, tag Tag) (record, error) {
	pins, err := r.store.ListPinned(ctx, ch)
	if err != nil {
		return record{}, fmt.Errorf("scanning %s records: %w", tag, err)
	}
	if rec := r.match(pins, tag); rec.found {
		rec.pinned = true
		return rec, nil
	}

	recent, err := r.store.FetchHistory(ctx, ch, historyScan)
	if err != nil {
		if errors.Is(err, channel.ErrPermissionDenied) {
			return record{}, nil
		}
		return record{}, fmt.Errorf("scanning %s history: %w", tag, err)
	}
	return r.match(recent, tag), nil
}

func (r *Registry) match(msgs []channel.Message, tag Tag) record {
	var rec record
	for _, msg := range msgs {
		body, ok := strings.CutPrefix(msg.Content, string(tag))
		if !ok {
			continue
		}
		if !rec.found {
			rec.msg = msg
			rec.found = true
		}
		body = strings.TrimSpace(body)
		if !json.Valid([]byte(body)) {
			r.logger.Warn("skipping malformed config record", "tag", string(tag), "message", msg.ID)
			r.metrics.RecordSkipped("config")
			continue
		}
		rec.msg = msg
		rec.payload = json.RawMessage(body)
		rec.valid = true
		return rec
	}
	return rec
}

func (r *Registry) create(ctx context.Context, ch channel.ID, tag Tag, payload json.RawMessage) error {
	msg, err := r.store.Send(ctx, ch, string(tag)+string(payload), "")
	if err != nil {
		return fmt.Errorf("writing %s record: %w", tag, err)
	}
	return r.pin(ctx, tag, msg)
}

func (r *Registry) pin(ctx context.Context, tag Tag, msg channel.Message) error {
	err := r.store.Pin(ctx, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, channel.ErrPermissionDenied):
		return fmt.Errorf("pinning %s record: %w: %w", tag, ErrUnpinned, err)
	default:
		return fmt.Errorf("pinning %s record: %w", tag, err)
	}
}

func (r *Registry) defaultPayload(tag Tag) (json.RawMessage, error) {
	switch tag {
	case TagTasks:
		b, err := json.Marshal(r.defaultTasks)
		if err != nil {
			return nil, fmt.Errorf("encoding default tasks: %w", err)
		}
		return b, nil
	default:
		return json.RawMessage("{}"), nil
	}
}

func (r *Registry) normalize(tag Tag, raw json.RawMessage) json.RawMessage {
	switch tag {
	case TagTasks:
		return migrate.NormalizeTaskList(raw)
	case TagGoals:
		return migrate.NormalizeGoalSet(raw)
	default:
		return raw
	}
}
