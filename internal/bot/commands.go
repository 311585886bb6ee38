// ABOUTME: Text command parsing and dispatch onto the tracker service
// ABOUTME: Every command returns a markdown reply; duplicate stops reply with nothing

package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/progress"
	"github.com/2389/coven-timekeeper/internal/timer"
	"github.com/2389/coven-timekeeper/internal/tracker"
)

// Tracker is the part of tracker.Service the commands use.
type Tracker interface {
	Start(ctx context.Context, user, task string) (timer.Session, error)
	Finish(ctx context.Context, user, requestID, memo string) (model.SessionLog, error)
	Cancel(user string) error
	Active(user string) (timer.Session, bool)
	Record(ctx context.Context, task string, minutes int, memo string, endedAt time.Time) (model.SessionLog, error)
	Today(ctx context.Context) ([]model.SessionLog, error)
	Progress(ctx context.Context) ([]progress.Snapshot, error)
	Tasks(ctx context.Context) ([]model.Task, error)
}

var _ Tracker = (*tracker.Service)(nil)

// Command is one line of text addressed to the bot, prefix already removed.
type Command struct {
	Sender  string
	EventID string
	Text    string
}

// Commands dispatches text commands.
type Commands struct {
	tracker Tracker
	now     func() time.Time
}

// NewCommands creates a dispatcher over t.
func NewCommands(t Tracker) *Commands {
	return &Commands{tracker: t, now: time.Now}
}

// Handle runs cmd and returns the reply. An empty reply means nothing should
// be posted.
func (c *Commands) Handle(ctx context.Context, cmd Command) (string, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(cmd.Text), " ")
	args = strings.TrimSpace(args)

	switch strings.ToLower(name) {
	case "start":
		return c.start(ctx, cmd.Sender, args)
	case "stop", "finish":
		return c.stop(ctx, cmd, args)
	case "cancel":
		if err := c.tracker.Cancel(cmd.Sender); err != nil {
			return userError(err)
		}
		return "Session cancelled.", nil
	case "status":
		return c.status(cmd.Sender), nil
	case "record":
		return c.record(ctx, args)
	case "today":
		return c.today(ctx)
	case "progress", "goals":
		snaps, err := c.tracker.Progress(ctx)
		if err != nil {
			return "", err
		}
		return tracker.GoalsPanelText(snaps), nil
	case "tasks":
		return c.tasks(ctx)
	case "help", "":
		return helpText, nil
	default:
		return fmt.Sprintf("Unknown command `%s`.\n\n%s", name, helpText), nil
	}
}

const helpText = "Commands: `start <task>`, `stop [memo]`, `cancel`, `status`, " +
	"`record <task> <minutes> [memo]`, `today`, `progress`, `tasks`"

func (c *Commands) start(ctx context.Context, user, task string) (string, error) {
	if task == "" {
		return "Usage: `start <task>`", nil
	}
	s, err := c.tracker.Start(ctx, user, task)
	if errors.Is(err, timer.ErrAlreadyRunning) {
		return fmt.Sprintf("**%s** is already running since %s.", s.Task, s.StartedAt.Format("15:04")), nil
	}
	if err != nil {
		return userError(err)
	}
	return fmt.Sprintf("Started **%s**.", s.Task), nil
}

func (c *Commands) stop(ctx context.Context, cmd Command, memo string) (string, error) {
	log, err := c.tracker.Finish(ctx, cmd.Sender, cmd.EventID, memo)
	if errors.Is(err, tracker.ErrDuplicate) {
		return "", nil
	}
	if err != nil {
		return userError(err)
	}
	return fmt.Sprintf("Recorded **%s** %s.", log.Task, log.DurationLabel), nil
}

func (c *Commands) status(user string) string {
	s, ok := c.tracker.Active(user)
	if !ok {
		return "No session is running."
	}
	return fmt.Sprintf("**%s** running for %s.", s.Task, model.FormatDuration(s.Minutes(c.now())))
}

func (c *Commands) record(ctx context.Context, args string) (string, error) {
	task, minutesArg, memo, ok := splitRecordArgs(args)
	if !ok {
		return "Usage: `record <task> <minutes> [memo]`", nil
	}
	minutes, err := strconv.Atoi(minutesArg)
	if err != nil {
		return fmt.Sprintf("`%s` is not a number of minutes.", minutesArg), nil
	}
	log, err := c.tracker.Record(ctx, task, minutes, memo, time.Time{})
	if err != nil {
		return userError(err)
	}
	return fmt.Sprintf("Recorded **%s** %s.", log.Task, log.DurationLabel), nil
}

// splitRecordArgs splits `<task> <minutes> [memo]`. The task is either a
// quoted name or every word before the first integer, so names with spaces
// work. Without an integer, the last word is returned as the minutes.
func splitRecordArgs(args string) (task, minutes, memo string, ok bool) {
	if rest, quoted := strings.CutPrefix(args, `"`); quoted {
		name, tail, closed := strings.Cut(rest, `"`)
		fields := strings.Fields(tail)
		if !closed || strings.TrimSpace(name) == "" || len(fields) == 0 {
			return "", "", "", false
		}
		return strings.TrimSpace(name), fields[0], strings.Join(fields[1:], " "), true
	}

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", "", "", false
	}
	for i := 1; i < len(fields); i++ {
		if _, err := strconv.Atoi(fields[i]); err == nil {
			return strings.Join(fields[:i], " "), fields[i], strings.Join(fields[i+1:], " "), true
		}
	}
	last := len(fields) - 1
	return strings.Join(fields[:last], " "), fields[last], "", true
}

func (c *Commands) today(ctx context.Context) (string, error) {
	logs, err := c.tracker.Today(ctx)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "Nothing recorded today.", nil
	}
	var b strings.Builder
	total := 0
	b.WriteString("**Today**")
	for _, l := range logs {
		fmt.Fprintf(&b, "\n- %s %s %s", l.EndedAt.Format("15:04"), l.Task, l.DurationLabel)
		if l.Memo != "" {
			fmt.Fprintf(&b, " (%s)", l.Memo)
		}
		total += l.DurationMin
	}
	fmt.Fprintf(&b, "\nTotal: %s", model.FormatDuration(total))
	return b.String(), nil
}

func (c *Commands) tasks(ctx context.Context) (string, error) {
	tasks, err := c.tracker.Tasks(ctx)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks configured.", nil
	}
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return "Tasks: " + strings.Join(names, ", "), nil
}

// userError turns errors the user can act on into replies and passes the
// rest through.
func userError(err error) (string, error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error() + ".", nil
	case errors.Is(err, timer.ErrNoSession):
		return "No session is running.", nil
	default:
		return "", err
	}
}
