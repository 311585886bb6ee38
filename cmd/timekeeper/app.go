// ABOUTME: Builds the platform, stores, and tracker service from configuration
// ABOUTME: Backend selection lives here; everything above it is backend-agnostic

package main

import (
	"fmt"
	"io"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/clock"
	"github.com/2389/coven-timekeeper/internal/config"
	"github.com/2389/coven-timekeeper/internal/dedupe"
	"github.com/2389/coven-timekeeper/internal/logstore"
	"github.com/2389/coven-timekeeper/internal/metrics"
	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/registry"
	"github.com/2389/coven-timekeeper/internal/tracker"
)

// app is the wired process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	service *tracker.Service
	// seen drops replayed chat events; the tracker keeps its own request cache
	seen    *dedupe.Cache
	// matrix is set only for the matrix backend
	matrix  *mautrix.Client
	closers []io.Closer
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	platform, err := a.platform()
	if err != nil {
		return nil, err
	}

	clk := clock.Real()
	store := channel.NewStore(platform,
		channel.WithLogger(logger),
		channel.WithMetrics(a.metrics),
		channel.WithPinLimit(cfg.Limits.PinLimit),
		channel.WithMaxHistory(cfg.Limits.MaxHistory),
	)
	reg := registry.New(store,
		registry.WithLogger(logger),
		registry.WithMetrics(a.metrics),
		registry.WithClock(clk),
		registry.WithLocation(cfg.Location),
		registry.WithDefaultTasks(defaultTasks(cfg.Defaults.Tasks)),
	)
	logs := logstore.New(store,
		logstore.WithLogger(logger),
		logstore.WithMetrics(a.metrics),
		logstore.WithLocation(cfg.Location),
	)
	a.seen = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize, clk)

	a.service, err = tracker.New(tracker.Config{
		Guild: cfg.Guild,
		Layout: tracker.Layout{
			Category:  cfg.Channels.Category,
			Dashboard: cfg.Channels.Dashboard,
			Timeline:  cfg.Channels.Timeline,
			Goals:     cfg.Channels.Goals,
			Report:    cfg.Channels.Report,
			Data:      cfg.Channels.Data,
		},
		Limits: tracker.Limits{
			Today:    cfg.Limits.Today,
			Progress: cfg.Limits.Progress,
			Report:   cfg.Limits.Report,
			Purge:    cfg.Limits.Purge,
		},
	}, tracker.Deps{
		Channels: store,
		Registry: reg,
		Logs:     logs,
		Dedupe:   dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize, clk),
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) platform() (channel.Platform, error) {
	switch a.cfg.Backend {
	case config.BackendMatrix:
		client, err := mautrix.NewClient(a.cfg.Matrix.Homeserver, id.UserID(a.cfg.Matrix.UserID), a.cfg.Matrix.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("creating matrix client: %w", err)
		}
		a.matrix = client
		return channel.NewMatrixPlatform(client, a.logger), nil
	case config.BackendSQLite:
		p, err := channel.NewSQLitePlatform(a.cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.closers = append(a.closers, p)
		return p, nil
	case config.BackendMemory:
		return channel.NewMemoryPlatform(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}
}

// Close releases backend resources.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func defaultTasks(tasks []config.TaskConfig) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		style := model.Style(t.Style)
		if !style.Valid() {
			style = model.StyleSecondary
		}
		out = append(out, model.Task{Name: t.Name, Style: style})
	}
	return out
}
