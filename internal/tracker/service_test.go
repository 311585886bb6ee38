// ABOUTME: Tests for the tracker service over the in-memory platform
// ABOUTME: Covers setup warnings, session recording, dedupe, progress, and reports

package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/clock"
	"github.com/2389/coven-timekeeper/internal/logstore"
	"github.com/2389/coven-timekeeper/internal/model"
	"github.com/2389/coven-timekeeper/internal/registry"
	"github.com/2389/coven-timekeeper/internal/timer"
)

var jst = time.FixedZone("JST", 9*60*60)

type harness struct {
	svc      *Service
	platform *channel.MemoryPlatform
	clock    *clock.Fake
	renderer *fakeRenderer
}

type fakeRenderer struct {
	calls int
	tasks []string
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, logs []model.SessionLog, start, end time.Time, tasks []string) ([]byte, bool, error) {
	f.calls++
	f.tasks = tasks
	if f.err != nil {
		return nil, false, f.err
	}
	return []byte("png"), true, nil
}

func newHarness(t *testing.T) harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 10, 18, 0, 0, 0, jst))
	platform := channel.NewMemoryPlatform()
	store := channel.NewStore(platform)
	reg := registry.New(store,
		registry.WithClock(clk),
		registry.WithDefaultTasks([]model.Task{
			{Name: "Study", Style: model.StylePrimary},
			{Name: "Work", Style: model.StyleSuccess},
		}),
	)
	logs := logstore.New(store, logstore.WithLocation(jst))
	renderer := &fakeRenderer{}

	svc, err := New(Config{Guild: "guild"}, Deps{
		Channels: store,
		Registry: reg,
		Logs:     logs,
		Renderer: renderer,
		Clock:    clk,
	})
	require.NoError(t, err)
	return harness{svc: svc, platform: platform, clock: clk, renderer: renderer}
}

func channelByName(t *testing.T, p *channel.MemoryPlatform, name string) channel.Channel {
	t.Helper()
	for _, c := range p.Channels() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("channel %q not found", name)
	return channel.Channel{}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
	_, err = New(Config{Guild: "g"}, Deps{})
	assert.Error(t, err)
}

func TestSetup_ProvisionsChannels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	report, err := h.svc.Setup(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
	assert.Len(t, h.platform.Channels(), 5)

	data := channelByName(t, h.platform, "timekeeper-data")
	assert.True(t, data.Hidden)
	assert.True(t, data.WriteRestricted)
	assert.Equal(t, "Timekeeper", data.Category)
	assert.Equal(t, data.ID, report.Channels.Data)

	dashboard := h.platform.Messages(report.Channels.Dashboard)
	require.Len(t, dashboard, 1)
	assert.Contains(t, dashboard[0].Content, "- Study")

	goals := h.platform.Messages(report.Channels.Goals)
	require.Len(t, goals, 1)
	assert.Equal(t, "**Goals**\nNo goals set.", goals[0].Content)

	// Running again reuses channels and replaces the panels.
	again, err := h.svc.Setup(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Channels, again.Channels)
	assert.Len(t, h.platform.Channels(), 5)
	assert.Len(t, h.platform.Messages(report.Channels.Dashboard), 1)
}

func TestSetup_PurgeDeniedIsWarning(t *testing.T) {
	h := newHarness(t)
	h.platform.Deny(channel.OpPurge)

	report, err := h.svc.Setup(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Warnings, 2)
	assert.Len(t, h.platform.Messages(report.Channels.Dashboard), 1, "panel posted even without purge rights")
}

func TestSetup_CreateDenied(t *testing.T) {
	h := newHarness(t)
	h.platform.Deny(channel.OpCreate)

	_, err := h.svc.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, channel.ErrPermissionDenied, "the data channel is required")
}

func TestStartFinish_RecordsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	report, err := h.svc.Setup(ctx)
	require.NoError(t, err)

	session, err := h.svc.Start(ctx, "@alice:example.org", "Study")
	require.NoError(t, err)
	assert.Equal(t, "Study", session.Task)

	_, err = h.svc.Start(ctx, "@alice:example.org", "Work")
	assert.ErrorIs(t, err, timer.ErrAlreadyRunning)

	h.clock.Advance(65 * time.Minute)
	log, err := h.svc.Finish(ctx, "@alice:example.org", "$evt1", " chapter 4 ")
	require.NoError(t, err)
	assert.Equal(t, 65, log.DurationMin)
	assert.Equal(t, "1h 05m", log.DurationLabel)
	assert.Equal(t, "chapter 4", log.Memo)
	assert.Equal(t, "2024-03-10", log.Date)

	_, ok := h.svc.Active("@alice:example.org")
	assert.False(t, ok)

	timeline := h.platform.Messages(report.Channels.Timeline)
	require.Len(t, timeline, 1)
	assert.Empty(t, timeline[0].Payload)

	today, err := h.svc.Today(ctx)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "Study", today[0].Task)
}

func TestFinish_DuplicateRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "u", "Study")
	require.NoError(t, err)
	_, err = h.svc.Finish(ctx, "u", "$evt1", "")
	require.NoError(t, err)

	_, err = h.svc.Start(ctx, "u", "Study")
	require.NoError(t, err)
	_, err = h.svc.Finish(ctx, "u", "$evt1", "")
	assert.ErrorIs(t, err, ErrDuplicate)
	_, ok := h.svc.Active("u")
	assert.True(t, ok, "a duplicate stop leaves the session running")
}

func TestFinish_NoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Finish(ctx, "u", "$evt1", "")
	assert.ErrorIs(t, err, timer.ErrNoSession)

	_, err = h.svc.Start(ctx, "u", "Study")
	require.NoError(t, err)
	_, err = h.svc.Finish(ctx, "u", "$evt1", "")
	assert.NoError(t, err, "a failed stop does not consume the request id")
}

func TestFinish_WriteFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "u", "Study")
	require.NoError(t, err)

	boom := errors.New("homeserver unavailable")
	h.platform.Fail(channel.OpSend, boom)
	_, err = h.svc.Finish(ctx, "u", "$evt1", "")
	require.ErrorIs(t, err, boom)

	_, ok := h.svc.Active("u")
	assert.True(t, ok)

	h.platform.Fail(channel.OpSend, nil)
	_, err = h.svc.Finish(ctx, "u", "$evt1", "")
	assert.NoError(t, err)
}

func TestStart_UnknownTask(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), "u", "Juggling")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRecordAndProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddGoal(ctx, "Study", model.Goal{Target: 60, Period: model.PeriodDaily})
	require.NoError(t, err)
	_, err = h.svc.AddGoal(ctx, "Work", model.Goal{Target: 120, Period: model.PeriodWeekly})
	require.NoError(t, err)

	_, err = h.svc.Record(ctx, "Study", 30, "", time.Date(2024, 3, 10, 8, 0, 0, 0, jst))
	require.NoError(t, err)
	_, err = h.svc.Record(ctx, "Study", 999, "", time.Date(2024, 3, 9, 23, 59, 0, 0, jst))
	require.NoError(t, err)
	_, err = h.svc.Record(ctx, "Work", 150, "", time.Time{})
	require.NoError(t, err)

	snaps, err := h.svc.Progress(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "Study", snaps[0].Task)
	assert.Equal(t, 30, snaps[0].Current)
	assert.Equal(t, 50, snaps[0].Percent)
	assert.Equal(t, 100, snaps[1].Percent)

	chans, err := h.svc.Channels(ctx)
	require.NoError(t, err)
	panel := h.platform.Messages(chans.Goals)
	require.Len(t, panel, 1, "the panel is replaced, not appended")
	assert.Contains(t, panel[0].Content, "`█████░░░░░` 50% (30m / 1h 00m)")

	_, err = h.svc.Record(ctx, "Study", 0, "", time.Time{})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, r := range []struct {
		task string
		min  int
		at   time.Time
	}{
		{"Work", 60, time.Date(2024, 3, 5, 10, 0, 0, 0, jst)},
		{"Study", 30, time.Date(2024, 3, 6, 10, 0, 0, 0, jst)},
		{"Study", 45, time.Date(2024, 3, 7, 10, 0, 0, 0, jst)},
		{"Study", 500, time.Date(2024, 2, 1, 10, 0, 0, 0, jst)},
	} {
		_, err := h.svc.Record(ctx, r.task, r.min, "", r.at)
		require.NoError(t, err)
	}

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, jst)
	end := time.Date(2024, 3, 31, 23, 59, 59, 0, jst)
	rep, err := h.svc.Report(ctx, start, end, nil)
	require.NoError(t, err)
	assert.Equal(t, []TaskTotal{{Task: "Study", Minutes: 75, Count: 2}, {Task: "Work", Minutes: 60, Count: 1}}, rep.Totals)
	assert.Equal(t, 135, rep.Total)
	assert.Equal(t, []byte("png"), rep.Image)

	filtered, err := h.svc.Report(ctx, start, end, []string{"Work"})
	require.NoError(t, err)
	assert.Equal(t, 60, filtered.Total)
	assert.Equal(t, []string{"Work"}, h.renderer.tasks)

	_, err = h.svc.Report(ctx, end, start, nil)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReport_EmptySkipsRenderer(t *testing.T) {
	h := newHarness(t)
	rep, err := h.svc.Report(context.Background(), time.Now().Add(-time.Hour), time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Totals)
	assert.Nil(t, rep.Image)
	assert.Equal(t, 0, h.renderer.calls)
}

func TestTaskMutations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tasks, err := h.svc.AddTask(ctx, model.Task{Name: "Guitar", Style: model.StyleDanger})
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	tasks, err = h.svc.RemoveTask(ctx, "Work")
	require.NoError(t, err)
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	assert.Equal(t, "Study,Guitar", strings.Join(names, ","))

	_, err = h.svc.AddGoal(ctx, "Guitar", model.Goal{Target: 20, Period: model.PeriodDaily})
	require.NoError(t, err)
	goals, err := h.svc.RemoveGoal(ctx, "Guitar", 0)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", Bar(0, 10))
	assert.Equal(t, "█████░░░░░", Bar(55, 10))
	assert.Equal(t, "██████████", Bar(250, 10))
	assert.Equal(t, "░░░░", Bar(-3, 4))
}
