// ABOUTME: Calculate sums logged minutes per goal window and clamps percentages
// ABOUTME: Goals with a non-positive target or an unknown period are excluded

package progress

import (
	"fmt"
	"time"

	"github.com/2389/coven-timekeeper/internal/model"
)

// Snapshot is the progress of one goal at a point in time.
type Snapshot struct {
	Task        string
	GoalIndex   int
	Current     int
	Target      int
	Period      model.Period
	PeriodLabel string
	Percent     int
	WindowStart time.Time
	WindowEnd   time.Time
	// DaysLeft is only set for custom goals.
	DaysLeft int
}

// Done reports whether the target has been reached.
func (s Snapshot) Done() bool {
	return s.Current >= s.Target
}

// Calculate returns a snapshot for every usable goal in goals, in goal set
// order and then goal index. It never fails; unusable goals are omitted.
func Calculate(logs []model.SessionLog, goals model.GoalSet, now time.Time) []Snapshot {
	snaps := make([]Snapshot, 0, len(goals))
	for _, tg := range goals {
		for i, goal := range tg.Goals {
			w, ok := windowFor(goal, now)
			if !ok {
				continue
			}
			current := sumMinutes(logs, tg.Task, w)
			snaps = append(snaps, Snapshot{
				Task:        tg.Task,
				GoalIndex:   i,
				Current:     current,
				Target:      goal.Target,
				Period:      goal.Period,
				PeriodLabel: w.label,
				Percent:     Percent(current, goal.Target),
				WindowStart: w.start,
				WindowEnd:   w.end,
				DaysLeft:    w.daysLeft,
			})
		}
	}
	return snaps
}

// Percent returns floor(current*100/target) clamped to [0, 100]. A
// non-positive target yields 0.
func Percent(current, target int) int {
	if target <= 0 || current <= 0 {
		return 0
	}
	p := current * 100 / target
	if p > 100 {
		return 100
	}
	return p
}

type window struct {
	start, end time.Time
	// closed windows also exclude logs after end
	closed   bool
	label    string
	daysLeft int
}

func (w window) contains(t time.Time) bool {
	if t.Before(w.start) {
		return false
	}
	return !w.closed || !t.After(w.end)
}

func windowFor(goal model.Goal, now time.Time) (window, bool) {
	if goal.Target <= 0 {
		return window{}, false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch goal.Period {
	case model.PeriodDaily:
		return window{start: midnight, end: now, label: "Today"}, true
	case model.PeriodWeekly:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return window{start: midnight.AddDate(0, 0, -sinceMonday), end: now, label: "This week"}, true
	case model.PeriodMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return window{start: first, end: now, label: "This month"}, true
	case model.PeriodCustom:
		if goal.CustomDays <= 0 {
			return window{}, false
		}
		start := goal.CreatedAt
		if start.IsZero() {
			start = now
		}
		end := start.AddDate(0, 0, goal.CustomDays)
		left := DaysLeft(end, now)
		return window{
			start:    start,
			end:      end,
			closed:   true,
			label:    fmt.Sprintf("%d-day goal (%d days left)", goal.CustomDays, left),
			daysLeft: left,
		}, true
	default:
		return window{}, false
	}
}

// DaysLeft returns the whole days from now until end, floored, never negative.
func DaysLeft(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func sumMinutes(logs []model.SessionLog, task string, w window) int {
	total := 0
	for _, log := range logs {
		if log.Task != task || log.DurationMin <= 0 {
			continue
		}
		if w.contains(log.EndedAt) {
			total += log.DurationMin
		}
	}
	return total
}
