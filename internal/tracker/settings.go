// ABOUTME: Task and goal mutations that also refresh the goals panel
// ABOUTME: Registry errors pass through unchanged, including unpinned-write warnings

package tracker

import (
	"context"
	"errors"

	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/registry"
)

// AddTask adds a task to the configured list.
func (s *Service) AddTask(ctx context.Context, task model.Task) ([]model.Task, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.AddTask(ctx, chans.Data, task)
}

// RemoveTask removes a task from the configured list.
func (s *Service) RemoveTask(ctx context.Context, name string) ([]model.Task, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.RemoveTask(ctx, chans.Data, name)
}

// AddGoal adds a goal to task and refreshes the goals panel.
func (s *Service) AddGoal(ctx context.Context, task string, goal model.Goal) (model.GoalSet, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	goals, err := s.registry.AddGoal(ctx, chans.Data, task, goal)
	if err != nil && !errors.Is(err, registry.ErrUnpinned) {
		return nil, err
	}
	s.refreshAfterWrite(ctx)
	return goals, err
}

// RemoveGoal removes goal index of task and refreshes the goals panel.
func (s *Service) RemoveGoal(ctx context.Context, task string, index int) (model.GoalSet, error) {
	chans, err := s.Channels(ctx)
	if err != nil {
		return nil, err
	}
	goals, err := s.registry.RemoveGoal(ctx, chans.Data, task, index)
	if err != nil && !errors.Is(err, registry.ErrUnpinned) {
		return nil, err
	}
	s.refreshAfterWrite(ctx)
	return goals, err
}
