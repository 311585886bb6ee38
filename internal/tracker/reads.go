// ABOUTME: Read-side operations: today's records, goal progress, and range reports
// ABOUTME: Goal and log loads run concurrently under an errgroup

package tracker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/progress"
)

// Today returns today's records, newest first. Only the most recent
// Limits.Today messages are scanned.
func (s *Service) Today(ctx context.Context) ([]model.SessionLog, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.logs.Fetch(ctx, chans.Data, s.limits.Today)
	if err != nil {
		return nil, err
	}
	today := s.now().Format(model.DateLayout)
	out := logs[:0]
	for _, l := range logs {
		if l.Date == today {
			out = append(out, l)
		}
	}
	return out, nil
}

// Progress computes a snapshot for every usable goal.
func (s *Service) Progress(ctx context.Context) ([]progress.Snapshot, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}

	var goals model.GoalSet
	var logs []model.SessionLog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goals, err = s.registry.Goals(gctx, chans.Data)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.logs.Fetch(gctx, chans.Data, s.limits.Progress)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading progress inputs: %w", err)
	}
	return progress.Calculate(logs, goals, s.now()), nil
}

// TaskTotal is the minutes logged for one task in a report.
type TaskTotal struct {
	Task    string
	Minutes int
	Count   int
}

// Report summarizes records in a time range.
type Report struct {
	Start  time.Time
	End    time.Time
	Totals []TaskTotal
	Total  int
	Logs   []model.SessionLog
	// Image is the rendered chart, nil when no renderer is set or there was
	// nothing to draw.
	Image []byte
}

// Report totals records that ended in [start, end], optionally restricted to
// tasks. Totals follow the configured task order; tasks no longer configured
// come after, in order of first appearance.
func (s *Service) Report(ctx context.Context, start, end time.Time, tasks []string) (Report, error) {
	if end.Before(start) {
		return Report{}, model.Invalid("range", "end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	chans, err := s.Channels(ctx)
	if err != nil {
		return Report{}, err
	}

	var configured []model.Task
	var logs []model.SessionLog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		configured, err = s.registry.Tasks(gctx, chans.Data)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.logs.Fetch(gctx, chans.Data, s.limits.Report)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("loading report inputs: %w", err)
	}

	rep := Report{Start: start, End: end}
	byTask := make(map[string]*TaskTotal)
	var order []string
	for _, t := range configured {
		order = append(order, t.Name)
	}
	for _, l := range logs {
		if l.EndedAt.Before(start) || l.EndedAt.After(end) {
			continue
		}
		if len(tasks) > 0 && !slices.Contains(tasks, l.Task) {
			continue
		}
		rep.Logs = append(rep.Logs, l)
		tt, ok := byTask[l.Task]
		if !ok {
			tt = &TaskTotal{Task: l.Task}
			byTask[l.Task] = tt
			if !slices.Contains(order, l.Task) {
				order = append(order, l.Task)
			}
		}
		tt.Minutes += l.DurationMin
		tt.Count++
		rep.Total += l.DurationMin
	}
	for _, name := range order {
		if tt, ok := byTask[name]; ok {
			rep.Totals = append(rep.Totals, *tt)
		}
	}

	if s.renderer != nil && len(rep.Logs) > 0 {
		img, ok, err := s.renderer.Render(ctx, rep.Logs, start, end, tasks)
		if err != nil {
			return rep, fmt.Errorf("rendering report: %w", err)
		}
		if ok {
			rep.Image = img
		}
	}
	return rep, nil
}
