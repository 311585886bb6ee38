// ABOUTME: Domain types for tasks, goals, and completed session logs
// ABOUTME: GoalSet keeps task insertion order and encodes as an ordered JSON object

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Style is the button style a task is rendered with.
type Style string

// Task styles
const (
	StylePrimary   Style = "primary"
	StyleSecondary Style = "secondary"
	StyleSuccess   Style = "success"
	StyleDanger    Style = "danger"
)

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	switch s {
	case StylePrimary, StyleSecondary, StyleSuccess, StyleDanger:
		return true
	}
	return false
}

// Task is a trackable activity.
type Task struct {
	Name  string `json:"name" validate:"required,max=80"`
	Style Style  `json:"style" validate:"oneof=primary secondary success danger"`
}

// Period is the recurrence window of a goal.
type Period string

// Goal periods
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodCustom  Period = "custom"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodCustom:
		return true
	}
	return false
}

// Goal is a target number of minutes per period for one task.
// CustomDays is only meaningful for PeriodCustom. A zero CreatedAt means the
// stored value was missing or unparseable.
type Goal struct {
	Target     int       `json:"target" validate:"gt=0"`
	Period     Period    `json:"period" validate:"oneof=daily weekly monthly custom"`
	CustomDays int       `json:"custom_days,omitempty" validate:"gte=0,required_if=Period custom"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskGoals groups the goals owned by one task.
type TaskGoals struct {
	Task  string
	Goals []Goal
}

// GoalSet is the ordered mapping of task name to goals.
type GoalSet []TaskGoals

// Lookup returns the goals for task, or nil.
func (gs GoalSet) Lookup(task string) []Goal {
	for _, tg := range gs {
		if tg.Task == task {
			return tg.Goals
		}
	}
	return nil
}

// Add appends goal to task's list, creating the entry at the end if needed.
func (gs GoalSet) Add(task string, goal Goal) GoalSet {
	for i := range gs {
		if gs[i].Task == task {
			gs[i].Goals = append(gs[i].Goals, goal)
			return gs
		}
	}
	return append(gs, TaskGoals{Task: task, Goals: []Goal{goal}})
}

// Remove deletes the goal at index for task. Tasks left without goals are
// dropped from the set. It reports whether anything was removed.
func (gs GoalSet) Remove(task string, index int) (GoalSet, bool) {
	for i := range gs {
		if gs[i].Task != task {
			continue
		}
		goals := gs[i].Goals
		if index < 0 || index >= len(goals) {
			return gs, false
		}
		gs[i].Goals = append(goals[:index:index], goals[index+1:]...)
		if len(gs[i].Goals) == 0 {
			gs = append(gs[:i], gs[i+1:]...)
		}
		return gs, true
	}
	return gs, false
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (gs GoalSet) Clone() GoalSet {
	out := make(GoalSet, len(gs))
	for i, tg := range gs {
		out[i] = TaskGoals{Task: tg.Task, Goals: append([]Goal(nil), tg.Goals...)}
	}
	return out
}

// MarshalJSON encodes the set as a JSON object in insertion order.
func (gs GoalSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tg := range gs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tg.Task)
		if err != nil {
			return nil, fmt.Errorf("encoding task name: %w", err)
		}
		goals := tg.Goals
		if goals == nil {
			goals = []Goal{}
		}
		val, err := json.Marshal(goals)
		if err != nil {
			return nil, fmt.Errorf("encoding goals for %q: %w", tg.Task, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SessionLog is one completed session. It is immutable once written.
type SessionLog struct {
	Task          string    `json:"task"`
	DurationMin   int       `json:"duration_min"`
	DurationLabel string    `json:"duration_str"`
	Memo          string    `json:"memo"`
	Date          string    `json:"date"`
	EndedAt       time.Time `json:"timestamp"`
}

// DateLayout is the layout of SessionLog.Date.
const DateLayout = "2006-01-02"

// FormatDuration renders minutes the way session summaries show them.
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
