// ABOUTME: Admin subcommands: init, setup, task, goal, record, today, progress, report
// ABOUTME: Each command loads config, wires the app, and prints a plain-text result

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-timekeeper/internal/config"
	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/registry"
	"github.com/2389/coven-timekeeper/internal/tracker"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(configPath, []byte(config.Template), 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			color.Green("Wrote %s", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the timekeeper channels and post the panels",
		RunE: withApp(func(ctx context.Context, a *app) error {
			report, err := a.service.Setup(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "dashboard\t%s\n", report.Channels.Dashboard)
			fmt.Fprintf(w, "timeline\t%s\n", report.Channels.Timeline)
			fmt.Fprintf(w, "goals\t%s\n", report.Channels.Goals)
			fmt.Fprintf(w, "report\t%s\n", report.Channels.Report)
			fmt.Fprintf(w, "data\t%s\n", report.Channels.Data)
			w.Flush()
			for _, warning := range report.Warnings {
				color.Yellow("warning: %s", warning)
			}
			return nil
		}),
	}
}

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: withApp(func(ctx context.Context, a *app) error {
			tasks, err := a.service.Tasks(ctx)
			if err != nil {
				return err
			}
			printTasks(tasks)
			return nil
		}),
	})

	var style string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				tasks, err := a.service.AddTask(ctx, model.Task{Name: strings.Join(args, " "), Style: model.Style(style)})
				if err != nil && !errors.Is(err, registry.ErrUnpinned) {
					return err
				}
				printTasks(tasks)
				warnUnpinned(err)
				return nil
			})(cmd, args)
		},
	}
	add.Flags().StringVar(&style, "style", "secondary", "primary, secondary, success, or danger")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				tasks, err := a.service.RemoveTask(ctx, strings.Join(args, " "))
				if err != nil && !errors.Is(err, registry.ErrUnpinned) {
					return err
				}
				printTasks(tasks)
				warnUnpinned(err)
				return nil
			})(cmd, args)
		},
	})
	return cmd
}

// warnUnpinned reports a saved record that the bot could not pin.
func warnUnpinned(err error) {
	if err != nil {
		color.Yellow("warning: saved, but the record is not pinned and may be lost from history: %v", err)
	}
}

func printTasks(tasks []model.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Style)
	}
	w.Flush()
}

func newGoalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "goal", Short: "Manage goals"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: withApp(func(ctx context.Context, a *app) error {
			goals, err := a.service.Goals(ctx)
			if err != nil {
				return err
			}
			printGoals(goals)
			return nil
		}),
	})

	var target, days int
	var period string
	add := &cobra.Command{
		Use:   "add <task>",
		Short: "Add a goal to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				goals, err := a.service.AddGoal(ctx, args[0], model.Goal{
					Target:     target,
					Period:     model.Period(strings.ToLower(period)),
					CustomDays: days,
				})
				if err != nil && !errors.Is(err, registry.ErrUnpinned) {
					return err
				}
				printGoals(goals)
				warnUnpinned(err)
				return nil
			})(cmd, args)
		},
	}
	add.Flags().IntVar(&target, "target", 0, "target minutes per period")
	add.Flags().StringVar(&period, "period", "daily", "daily, weekly, monthly, or custom")
	add.Flags().IntVar(&days, "days", 0, "length in days of a custom goal")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <task> <index>",
		Short: "Remove a goal by its index in goal list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q is not a number", args[1])
			}
			return withApp(func(ctx context.Context, a *app) error {
				goals, err := a.service.RemoveGoal(ctx, args[0], idx)
				if err != nil && !errors.Is(err, registry.ErrUnpinned) {
					return err
				}
				printGoals(goals)
				warnUnpinned(err)
				return nil
			})(cmd, args)
		},
	})
	return cmd
}

func printGoals(goals model.GoalSet) {
	if len(goals) == 0 {
		fmt.Println("no goals")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, tg := range goals {
		for i, g := range tg.Goals {
			period := string(g.Period)
			if g.Period == model.PeriodCustom {
				period = fmt.Sprintf("%d days from %s", g.CustomDays, g.CreatedAt.Format(model.DateLayout))
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", tg.Task, i, model.FormatDuration(g.Target), period)
		}
	}
	w.Flush()
}

func newRecordCmd() *cobra.Command {
	var memo, at string
	cmd := &cobra.Command{
		Use:   "record <task> <minutes>",
		Short: "Record a session manually",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("minutes %q is not a number", args[1])
			}
			return withApp(func(ctx context.Context, a *app) error {
				var endedAt time.Time
				if at != "" {
					endedAt, err = time.ParseInLocation("2006-01-02 15:04", at, a.cfg.Location)
					if err != nil {
						return fmt.Errorf("--at must look like 2024-03-10 18:00: %w", err)
					}
				}
				log, err := a.service.Record(ctx, args[0], minutes, memo, endedAt)
				if err != nil {
					return err
				}
				fmt.Printf("recorded %s %s on %s\n", log.Task, log.DurationLabel, log.Date)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&memo, "memo", "", "note stored with the record")
	cmd.Flags().StringVar(&at, "at", "", `end time as "YYYY-MM-DD HH:MM" (default now)`)
	return cmd
}

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's records",
		RunE: withApp(func(ctx context.Context, a *app) error {
			logs, err := a.service.Today(ctx)
			if err != nil {
				return err
			}
			total := 0
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.EndedAt.Format("15:04"), l.Task, l.DurationLabel, l.Memo)
				total += l.DurationMin
			}
			w.Flush()
			fmt.Printf("total %s\n", model.FormatDuration(total))
			return nil
		}),
	}
}

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show goal progress",
		RunE: withApp(func(ctx context.Context, a *app) error {
			snaps, err := a.service.Progress(ctx)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("no goals")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%3d%%\t%s / %s\n", s.Task, s.PeriodLabel,
					tracker.Bar(s.Percent, 20), s.Percent,
					model.FormatDuration(s.Current), model.FormatDuration(s.Target))
			}
			w.Flush()
			return nil
		}),
	}
}

func newReportCmd() *cobra.Command {
	var from, to string
	var tasks []string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Total recorded time per task over a date range",
		RunE: withApp(func(ctx context.Context, a *app) error {
			now := time.Now().In(a.cfg.Location)
			start, end, err := reportRange(from, to, now, a.cfg.Location)
			if err != nil {
				return err
			}
			rep, err := a.service.Report(ctx, start, end, tasks)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, t := range rep.Totals {
				fmt.Fprintf(w, "%s\t%s\t%d sessions\n", t.Task, model.FormatDuration(t.Minutes), t.Count)
			}
			fmt.Fprintf(w, "total\t%s\t\n", model.FormatDuration(rep.Total))
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: 7 days ago)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringSliceVar(&tasks, "task", nil, "only include these tasks")
	return cmd
}

// reportRange resolves the --from/--to flags to [start of from, end of to].
func reportRange(from, to string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -6)
	last := today
	var err error
	if from != "" {
		if start, err = time.ParseInLocation(model.DateLayout, from, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if last, err = time.ParseInLocation(model.DateLayout, to, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
	}
	end := last.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end, nil
}
