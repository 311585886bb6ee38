// ABOUTME: Setup provisioning plus the dashboard and goals panel text
// ABOUTME: Permission failures during setup are reported as warnings

package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/progress"
)

// SetupReport describes what Setup did.
type SetupReport struct {
	Channels Channels
	Warnings []string
}

// Setup provisions every channel, clears and reposts the dashboard, and
// rewrites the goals panel. It is safe to run repeatedly.
func (s *Service) Setup(ctx context.Context) (SetupReport, error) {
	s.mu.Lock()
	s.resolved = nil
	chans, warnings, err := s.resolveLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return SetupReport{}, err
	}
	report := SetupReport{Channels: chans, Warnings: warnings}

	tasks, err := s.registry.Tasks(ctx, chans.Data)
	if err != nil {
		return report, err
	}
	if _, err := s.registry.Goals(ctx, chans.Data); err != nil {
		return report, err
	}

	if chans.Dashboard != "" {
		if err := s.repost(ctx, chans.Dashboard, DashboardText(tasks)); err != nil {
			if !errors.Is(err, channel.ErrPermissionDenied) {
				return report, err
			}
			report.Warnings = append(report.Warnings, "cannot clear dashboard: permission denied")
		}
	}
	if err := s.RefreshGoalsPanel(ctx); err != nil {
		if !errors.Is(err, channel.ErrPermissionDenied) {
			return report, err
		}
		report.Warnings = append(report.Warnings, "cannot clear goals panel: permission denied")
	}

	for _, w := range report.Warnings {
		s.logger.Warn("setup", "warning", w)
	}
	s.logger.Info("setup complete", "guild", s.guild, "data", chans.Data, "warnings", len(report.Warnings))
	return report, nil
}

// RefreshGoalsPanel replaces the goals channel content with current progress.
func (s *Service) RefreshGoalsPanel(ctx context.Context) error {
	chans, err := s.Channels(ctx)
	if err != nil {
		return err
	}
	if chans.Goals == "" {
		return nil
	}
	snaps, err := s.Progress(ctx)
	if err != nil {
		return err
	}
	return s.repost(ctx, chans.Goals, GoalsPanelText(snaps))
}

// repost purges ch and posts text. When purging is denied the text is still
// posted and the permission error returned.
func (s *Service) repost(ctx context.Context, ch channel.ID, text string) error {
	purgeErr := s.channels.Purge(ctx, ch, s.limits.Purge)
	if purgeErr != nil && !errors.Is(purgeErr, channel.ErrPermissionDenied) {
		return purgeErr
	}
	if _, err := s.channels.Send(ctx, ch, text, ""); err != nil {
		return err
	}
	return purgeErr
}

// DashboardText is the control panel posted to the dashboard channel.
func DashboardText(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString("**Timekeeper**\n")
	if len(tasks) == 0 {
		b.WriteString("No tasks configured.\n")
	}
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s\n", t.Name)
	}
	b.WriteString("\n`!start <task>` to begin, `!stop [memo]` to finish, `!today` and `!progress` to review.")
	return b.String()
}

const barWidth = 10

// GoalsPanelText renders one progress bar per snapshot.
func GoalsPanelText(snaps []progress.Snapshot) string {
	if len(snaps) == 0 {
		return "**Goals**\nNo goals set."
	}
	var b strings.Builder
	b.WriteString("**Goals**")
	for _, sn := range snaps {
		mark := ""
		if sn.Done() {
			mark = " ✅"
		}
		fmt.Fprintf(&b, "\n%s · %s%s\n`%s` %d%% (%s / %s)",
			sn.Task, sn.PeriodLabel, mark,
			Bar(sn.Percent, barWidth), sn.Percent,
			model.FormatDuration(sn.Current), model.FormatDuration(sn.Target))
	}
	return b.String()
}

// Bar draws percent as a fixed-width text bar.
func Bar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
