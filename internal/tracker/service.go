// ABOUTME: Service coordinates sessions, config records, and logs for one guild
// ABOUTME: Channels are resolved lazily; every operation takes a context

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/clock"
	"github.com/2389/coven-timekeeper/internal/dedupe"
	"github.com/2389/coven-timekeeper/internal/logstore"
	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/registry"
	"github.com/2389/coven-timekeeper/internal/timer"
)

// ErrDuplicate is returned when a stop request was already handled.
var ErrDuplicate = errors.New("duplicate request")

// Renderer draws a usage chart for a set of logs. ok is false when there is
// nothing to draw.
type Renderer interface {
	Render(ctx context.Context, logs []model.SessionLog, start, end time.Time, tasks []string) (image []byte, ok bool, err error)
}

// Layout names the channels the tracker uses.
type Layout struct {
	Category  string
	Dashboard string
	Timeline  string
	Goals     string
	Report    string
	Data      string
}

// DefaultLayout is used for any name left empty.
var DefaultLayout = Layout{
	Category:  "Timekeeper",
	Dashboard: "dashboard",
	Timeline:  "timeline",
	Goals:     "goals",
	Report:    "report",
	Data:      "timekeeper-data",
}

// Channels holds the resolved channel IDs.
type Channels struct {
	Dashboard channel.ID
	Timeline  channel.ID
	Goals     channel.ID
	Report    channel.ID
	Data      channel.ID
}

// Limits bounds how much history each read scans.
type Limits struct {
	Today    int
	Progress int
	Report   int
	Purge    int
}

// DefaultLimits are the history limits used when none are configured.
var DefaultLimits = Limits{
	Today:    50,
	Progress: 500,
	Report:   1000,
	Purge:    100,
}

// Config configures a Service.
type Config struct {
	Guild  string
	Layout Layout
	Limits Limits
}

// Deps are the collaborators a Service needs. Channels, Registry, and Logs
// are required.
type Deps struct {
	Channels *channel.Store
	Registry *registry.Registry
	Logs     *logstore.Store
	Timers   *timer.Table
	Dedupe   *dedupe.Cache
	Renderer Renderer
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	guild    string
	layout   Layout
	limits   Limits
	channels *channel.Store
	registry *registry.Registry
	logs     *logstore.Store
	timers   *timer.Table
	dedupe   *dedupe.Cache
	renderer Renderer
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	resolved *Channels
}

// New creates a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	if cfg.Guild == "" {
		return nil, errors.New("tracker: guild is required")
	}
	if deps.Channels == nil || deps.Registry == nil || deps.Logs == nil {
		return nil, errors.New("tracker: channels, registry, and logs are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Timers == nil {
		deps.Timers = timer.NewTable(deps.Clock)
	}
	if deps.Dedupe == nil {
		deps.Dedupe = dedupe.New(10*time.Minute, 1000, deps.Clock)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		guild:    cfg.Guild,
		layout:   withDefaultNames(cfg.Layout),
		limits:   withDefaultLimits(cfg.Limits),
		channels: deps.Channels,
		registry: deps.Registry,
		logs:     deps.Logs,
		timers:   deps.Timers,
		dedupe:   deps.Dedupe,
		renderer: deps.Renderer,
		clock:    deps.Clock,
		logger:   deps.Logger.With("component", "tracker"),
	}, nil
}

func withDefaultNames(l Layout) Layout {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Layout{
		Category:  pick(l.Category, DefaultLayout.Category),
		Dashboard: pick(l.Dashboard, DefaultLayout.Dashboard),
		Timeline:  pick(l.Timeline, DefaultLayout.Timeline),
		Goals:     pick(l.Goals, DefaultLayout.Goals),
		Report:    pick(l.Report, DefaultLayout.Report),
		Data:      pick(l.Data, DefaultLayout.Data),
	}
}

func withDefaultLimits(l Limits) Limits {
	pick := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	return Limits{
		Today:    pick(l.Today, DefaultLimits.Today),
		Progress: pick(l.Progress, DefaultLimits.Progress),
		Report:   pick(l.Report, DefaultLimits.Report),
		Purge:    pick(l.Purge, DefaultLimits.Purge),
	}
}

// Channels resolves (creating where missing) every tracker channel.
func (s *Service) Channels(ctx context.Context) (Channels, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved != nil {
		return *s.resolved, nil
	}
	chans, _, err := s.resolveLocked(ctx)
	if err != nil {
		return Channels{}, err
	}
	return chans, nil
}

// resolveLocked provisions all channels. Only a failure on the data channel
// is fatal; other permission failures come back as warnings with an empty ID.
func (s *Service) resolveLocked(ctx context.Context) (Channels, []string, error) {
	var chans Channels
	var warnings []string

	visible := channel.Options{Category: s.layout.Category}
	for _, c := range []struct {
		name string
		dst  *channel.ID
	}{
		{s.layout.Dashboard, &chans.Dashboard},
		{s.layout.Timeline, &chans.Timeline},
		{s.layout.Goals, &chans.Goals},
		{s.layout.Report, &chans.Report},
	} {
		ch, err := s.channels.ResolveOrCreate(ctx, s.guild, c.name, visible)
		if errors.Is(err, channel.ErrPermissionDenied) {
			warnings = append(warnings, fmt.Sprintf("cannot create channel %q: permission denied", c.name))
			continue
		}
		if err != nil {
			return Channels{}, nil, err
		}
		*c.dst = ch.ID
	}

	data, err := s.channels.ResolveOrCreate(ctx, s.guild, s.layout.Data, channel.Options{
		Category:        s.layout.Category,
		Hidden:          true,
		WriteRestricted: true,
	})
	if err != nil {
		return Channels{}, nil, fmt.Errorf("resolving data channel: %w", err)
	}
	chans.Data = data.ID

	s.resolved = &chans
	return chans, warnings, nil
}

// Tasks returns the configured task list.
func (s *Service) Tasks(ctx context.Context) ([]model.Task, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.Tasks(ctx, chans.Data)
}

// Goals returns the configured goal set.
func (s *Service) Goals(ctx context.Context) (model.GoalSet, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.Goals(ctx, chans.Data)
}

// Location returns the zone sessions are dated in.
func (s *Service) Location() *time.Location {
	return s.logs.Location()
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.logs.Location())
}

func (s *Service) requireTask(ctx context.Context, data channel.ID, name string) error {
	tasks, err := s.registry.Tasks(ctx, data)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Name == name {
			return nil
		}
	}
	return model.Invalid("task", "no task named %q", name)
}
