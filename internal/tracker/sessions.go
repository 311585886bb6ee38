// ABOUTME: Session lifecycle: start, finish, cancel, and manual records
// ABOUTME: Finishing appends the record and refreshes the goals panel

package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/timer"
)

// Start begins a session for user on task. The task must be configured.
func (s *Service) Start(ctx context.Context, user, task string) (timer.Session, error) {
	task = strings.TrimSpace(task)
	chans, err := s.Channels(ctx)
	if err != nil {
		return timer.Session{}, err
	}
	if err := s.requireTask(ctx, chans.Data, task); err != nil {
		return timer.Session{}, err
	}

	session, err := s.timers.Start(user, task)
	if err != nil {
		return session, err
	}
	s.logger.Info("session started", "user", user, "task", task, "session", session.ID)
	return session, nil
}

// Active returns user's running session, if any.
func (s *Service) Active(user string) (timer.Session, bool) {
	return s.timers.Active(user)
}

// Cancel drops user's running session without recording it.
func (s *Service) Cancel(user string) error {
	return s.timers.Cancel(user)
}

// Finish stops user's session and records it. requestID identifies the stop
// request; a repeated ID within the dedupe window returns ErrDuplicate. If
// the record cannot be written the session keeps running.
func (s *Service) Finish(ctx context.Context, user, requestID, memo string) (model.SessionLog, error) {
	if requestID != "" && s.dedupe.CheckAndMark(requestID) {
		return model.SessionLog{}, ErrDuplicate
	}

	chans, err := s.Channels(ctx)
	if err != nil {
		s.dedupe.Forget(requestID)
		return model.SessionLog{}, err
	}

	session, stoppedAt, err := s.timers.Stop(user)
	if err != nil {
		s.dedupe.Forget(requestID)
		return model.SessionLog{}, err
	}

	log := model.SessionLog{
		Task:        session.Task,
		DurationMin: session.Minutes(stoppedAt),
		Memo:        strings.TrimSpace(memo),
		EndedAt:     stoppedAt,
	}
	msg, err := s.logs.AppendWithMirror(ctx, chans.Data, chans.Timeline, log)
	if err != nil && msg.ID == "" {
		s.timers.Restore(session)
		s.dedupe.Forget(requestID)
		return model.SessionLog{}, fmt.Errorf("recording session %s: %w", session.ID, err)
	}
	if err != nil {
		s.logger.Warn("session stored but not mirrored", "session", session.ID, "error", err)
	}

	s.logger.Info("session finished", "user", user, "task", session.Task, "minutes", log.DurationMin)
	s.refreshAfterWrite(ctx)
	return s.completed(log), nil
}

// Record appends a manually entered session that ended at endedAt. A zero
// endedAt means now.
func (s *Service) Record(ctx context.Context, task string, minutes int, memo string, endedAt time.Time) (model.SessionLog, error) {
	task = strings.TrimSpace(task)
	if minutes <= 0 {
		return model.SessionLog{}, model.Invalid("duration_min", "must be positive, got %d", minutes)
	}
	chans, err := s.Channels(ctx)
	if err != nil {
		return model.SessionLog{}, err
	}
	if err := s.requireTask(ctx, chans.Data, task); err != nil {
		return model.SessionLog{}, err
	}
	if endedAt.IsZero() {
		endedAt = s.now()
	}

	log := model.SessionLog{Task: task, DurationMin: minutes, Memo: strings.TrimSpace(memo), EndedAt: endedAt}
	msg, err := s.logs.AppendWithMirror(ctx, chans.Data, chans.Timeline, log)
	if err != nil && msg.ID == "" {
		return model.SessionLog{}, err
	}
	if err != nil {
		s.logger.Warn("record stored but not mirrored", "task", task, "error", err)
	}
	s.refreshAfterWrite(ctx)
	return s.completed(log), nil
}

// completed fills the derived fields the log store adds on write.
func (s *Service) completed(log model.SessionLog) model.SessionLog {
	log.EndedAt = log.EndedAt.In(s.logs.Location())
	log.DurationLabel = model.FormatDuration(log.DurationMin)
	log.Date = log.EndedAt.Format(model.DateLayout)
	return log
}

// refreshAfterWrite rewrites the goals panel. The record is already stored,
// so a failure here is only logged.
func (s *Service) refreshAfterWrite(ctx context.Context) {
	if err := s.RefreshGoalsPanel(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("goals panel refresh failed", "error", err)
	}
}
