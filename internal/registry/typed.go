// ABOUTME: Typed task and goal accessors on top of the raw record API
// ABOUTME: Mutations are validated before anything is written

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/migrate"
	"github.com/2389/coven-timekeeper/internal/model"
)

// validate checks the struct tags on model types. Field names in errors use
// the JSON names.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Tasks returns the task list in ch.
func (r *Registry) Tasks(ctx context.Context, ch channel.ID) ([]model.Task, error) {
	raw, err := r.Load(ctx, ch, TagTasks)
	if err != nil {
		return nil, err
	}
	return migrate.DecodeTaskList(raw), nil
}

// SaveTasks replaces the task list. Names are trimmed and must be non-blank
// and unique.
func (r *Registry) SaveTasks(ctx context.Context, ch channel.ID, tasks []model.Task) error {
	clean := make([]model.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return model.Invalid("name", "task name is blank")
		}
		if err := checkStruct(t); err != nil {
			return err
		}
		if seen[t.Name] {
			return model.Invalid("name", "duplicate task %q", t.Name)
		}
		seen[t.Name] = true
		clean = append(clean, t)
	}
	return r.saveJSON(ctx, ch, TagTasks, clean)
}

// AddTask appends a task. An empty style defaults to secondary.
//
// Like the other mutations, when the record is written but cannot be pinned
// the new value is returned together with an error wrapping ErrUnpinned.
func (r *Registry) AddTask(ctx context.Context, ch channel.ID, task model.Task) ([]model.Task, error) {
	task.Name = strings.TrimSpace(task.Name)
	if task.Name == "" {
		return nil, model.Invalid("name", "task name is blank")
	}
	if task.Style == "" {
		task.Style = model.StyleSecondary
	}
	if err := checkStruct(task); err != nil {
		return nil, err
	}

	tasks, err := r.Tasks(ctx, ch)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Name == task.Name {
			return nil, model.Invalid("name", "task %q already exists", task.Name)
		}
	}
	tasks = append(tasks, task)
	if err := r.saveJSON(ctx, ch, TagTasks, tasks); err != nil {
		return written(tasks, err)
	}
	return tasks, nil
}

// RemoveTask deletes the named task. Goals referring to it are left in place.
func (r *Registry) RemoveTask(ctx context.Context, ch channel.ID, name string) ([]model.Task, error) {
	tasks, err := r.Tasks(ctx, ch)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, t := range tasks {
		if t.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, model.Invalid("name", "no task named %q", name)
	}
	tasks = append(tasks[:idx], tasks[idx+1:]...)
	if err := r.saveJSON(ctx, ch, TagTasks, tasks); err != nil {
		return written(tasks, err)
	}
	return tasks, nil
}

// Goals returns the goal set in ch.
func (r *Registry) Goals(ctx context.Context, ch channel.ID) (model.GoalSet, error) {
	raw, err := r.Load(ctx, ch, TagGoals)
	if err != nil {
		return nil, err
	}
	return migrate.DecodeGoalSet(raw, r.loc), nil
}

// SaveGoals replaces the goal set.
func (r *Registry) SaveGoals(ctx context.Context, ch channel.ID, goals model.GoalSet) error {
	for _, tg := range goals {
		for _, g := range tg.Goals {
			if err := checkStruct(g); err != nil {
				return err
			}
		}
	}
	return r.saveJSON(ctx, ch, TagGoals, goals)
}

// AddGoal adds goal to task. The task must exist in the task list. A zero
// CreatedAt is stamped with the current time.
func (r *Registry) AddGoal(ctx context.Context, ch channel.ID, task string, goal model.Goal) (model.GoalSet, error) {
	if err := checkStruct(goal); err != nil {
		return nil, err
	}
	if goal.Period != model.PeriodCustom {
		goal.CustomDays = 0
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = r.clock.Now()
	}

	tasks, err := r.Tasks(ctx, ch)
	if err != nil {
		return nil, err
	}
	if !hasTask(tasks, task) {
		return nil, model.Invalid("task", "no task named %q", task)
	}

	goals, err := r.Goals(ctx, ch)
	if err != nil {
		return nil, err
	}
	goals = goals.Add(task, goal)
	if err := r.saveJSON(ctx, ch, TagGoals, goals); err != nil {
		return written(goals, err)
	}
	return goals, nil
}

// RemoveGoal deletes the goal at index for task.
func (r *Registry) RemoveGoal(ctx context.Context, ch channel.ID, task string, index int) (model.GoalSet, error) {
	goals, err := r.Goals(ctx, ch)
	if err != nil {
		return nil, err
	}
	goals, ok := goals.Remove(task, index)
	if !ok {
		return nil, model.Invalid("goal", "no goal %d for task %q", index, task)
	}
	if err := r.saveJSON(ctx, ch, TagGoals, goals); err != nil {
		return written(goals, err)
	}
	return goals, nil
}

func (r *Registry) saveJSON(ctx context.Context, ch channel.ID, tag Tag, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", tag, err)
	}
	return r.Save(ctx, ch, tag, b)
}

// written keeps v alongside an ErrUnpinned save error, since the value was
// stored; any other error discards it.
func written[T any](v T, err error) (T, error) {
	if errors.Is(err, ErrUnpinned) {
		return v, err
	}
	var zero T
	return zero, err
}

func hasTask(tasks []model.Task, name string) bool {
	for _, t := range tasks {
		if t.Name == name {
			return true
		}
	}
	return false
}

// checkStruct runs tag validation and converts the first failure into a
// *model.ValidationError.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return model.Invalid(fe.Field(), "failed %s=%s", fe.Tag(), fe.Param())
		}
		return model.Invalid(fe.Field(), "failed %s", fe.Tag())
	}
	return model.Invalid("", "%v", err)
}
