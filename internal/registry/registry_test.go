// ABOUTME: Tests for config record load/save over the in-memory platform
// ABOUTME: Covers default init, single-pin invariant, malformed pins, and typed mutations

package registry

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-timekeeper/internal/channel"
	"github.com/2389/coven-timekeeper/internal/clock"
	"github.com/2389/coven-timekeeper/internal/model"
)

type fixture struct {
	platform *channel.MemoryPlatform
	store    *channel.Store
	reg      *Registry
	ch       channel.ID
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	platform := channel.NewMemoryPlatform()
	store := channel.NewStore(platform)
	c, err := store.ResolveOrCreate(context.Background(), "guild", "timekeeper-data", channel.Options{Hidden: true})
	require.NoError(t, err)
	return fixture{platform: platform, store: store, reg: New(store, opts...), ch: c.ID}
}

func (f fixture) taggedPins(t *testing.T, tag Tag) []channel.Message {
	t.Helper()
	pins, err := f.store.ListPinned(context.Background(), f.ch)
	require.NoError(t, err)
	var out []channel.Message
	for _, p := range pins {
		if strings.HasPrefix(p.Content, string(tag)) {
			out = append(out, p)
		}
	}
	return out
}

func TestLoad_MissWritesAndPinsDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.reg.Load(ctx, f.ch, TagGoals)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	pins := f.taggedPins(t, TagGoals)
	require.Len(t, pins, 1)
	assert.Equal(t, "CONFIG_GOALS:{}", pins[0].Content)

	_, err = f.reg.Load(ctx, f.ch, TagGoals)
	require.NoError(t, err)
	assert.Len(t, f.taggedPins(t, TagGoals), 1, "second load reads the existing record")
}

func TestLoad_DefaultTasksFromOption(t *testing.T) {
	f := newFixture(t, WithDefaultTasks([]model.Task{{Name: "Reading", Style: model.StyleSuccess}}))

	tasks, err := f.reg.Tasks(context.Background(), f.ch)
	require.NoError(t, err)
	assert.Equal(t, []model.Task{{Name: "Reading", Style: model.StyleSuccess}}, tasks)
}

func TestLoad_MigratesLegacyShapes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.store.Send(ctx, f.ch, `CONFIG_TASKS:["Study","Work"]`, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Pin(ctx, msg))

	raw, err := f.reg.Load(ctx, f.ch, TagTasks)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Study","style":"secondary"},{"name":"Work","style":"secondary"}]`, string(raw))

	msg, err = f.store.Send(ctx, f.ch, `CONFIG_GOALS:{"Study":{"target":60,"period":"daily"}}`, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Pin(ctx, msg))

	goals, err := f.reg.Goals(ctx, f.ch)
	require.NoError(t, err)
	require.Len(t, goals.Lookup("Study"), 1)
	assert.Equal(t, 60, goals.Lookup("Study")[0].Target)
}

func TestLoad_SkipsMalformedPin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good, err := f.store.Send(ctx, f.ch, `CONFIG_TASKS:[{"name":"Work","style":"danger"}]`, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Pin(ctx, good))
	bad, err := f.store.Send(ctx, f.ch, `CONFIG_TASKS:{not json`, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Pin(ctx, bad))

	tasks, err := f.reg.Tasks(ctx, f.ch)
	require.NoError(t, err)
	assert.Equal(t, []model.Task{{Name: "Work", Style: model.StyleDanger}}, tasks)
}

func TestLoad_OnlyMalformedPinIsReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad, err := f.store.Send(ctx, f.ch, `CONFIG_GOALS:oops`, "")
	require.NoError(t, err)
	require.NoError(t, f.store.Pin(ctx, bad))

	raw, err := f.reg.Load(ctx, f.ch, TagGoals)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))

	pins := f.taggedPins(t, TagGoals)
	require.Len(t, pins, 1)
	assert.Equal(t, bad.ID, pins[0].ID)
	assert.Equal(t, "CONFIG_GOALS:{}", pins[0].Content)
}

func TestLoad_PinDeniedStillReturnsDefault(t *testing.T) {
	f := newFixture(t)
	f.platform.Deny(channel.OpPin)

	raw, err := f.reg.Load(context.Background(), f.ch, TagGoals)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
	assert.Len(t, f.platform.Messages(f.ch), 1)

	for i := 0; i < 3; i++ {
		_, err = f.reg.Load(context.Background(), f.ch, TagGoals)
		require.NoError(t, err)
	}
	assert.Len(t, f.platform.Messages(f.ch), 1, "later loads find the unpinned default")
}

func TestSave_PinDeniedIsReportedAndReadBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.Deny(channel.OpPin)

	mine := []model.Task{{Name: "Mine", Style: model.StylePrimary}}
	err := f.reg.SaveTasks(ctx, f.ch, mine)
	assert.ErrorIs(t, err, ErrUnpinned)
	assert.ErrorIs(t, err, channel.ErrPermissionDenied)

	for i := 0; i < 3; i++ {
		got, err := f.reg.Tasks(ctx, f.ch)
		require.NoError(t, err)
		assert.Equal(t, mine, got)
	}
	assert.Len(t, f.platform.Messages(f.ch), 1)

	tasks, err := f.reg.AddTask(ctx, f.ch, model.Task{Name: "Other"})
	assert.ErrorIs(t, err, ErrUnpinned)
	assert.Len(t, tasks, 2, "the written list is still returned")
	assert.Len(t, f.platform.Messages(f.ch), 1, "the unpinned record is edited in place")

	f.platform.Allow(channel.OpPin)
	require.NoError(t, f.reg.SaveTasks(ctx, f.ch, mine))
	pins := f.taggedPins(t, TagTasks)
	require.Len(t, pins, 1, "the record is pinned once permission returns")
	assert.Len(t, f.platform.Messages(f.ch), 1)
}

func TestSave_EditDeniedDiscardsResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Tasks(ctx, f.ch)
	require.NoError(t, err)
	f.platform.Deny(channel.OpEdit)

	tasks, err := f.reg.AddTask(ctx, f.ch, model.Task{Name: "Other"})
	assert.ErrorIs(t, err, channel.ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrUnpinned)
	assert.Nil(t, tasks)
}

func TestLoad_ListFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.platform.Fail(channel.OpPins, assert.AnError)

	_, err := f.reg.Load(context.Background(), f.ch, TagTasks)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, f.platform.Messages(f.ch))
}

func TestSave_CreatesOnceThenEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Save(ctx, f.ch, TagTasks, json.RawMessage(`[{"name":"A","style":"primary"}]`)))
	first := f.taggedPins(t, TagTasks)
	require.Len(t, first, 1)

	require.NoError(t, f.reg.Save(ctx, f.ch, TagTasks, json.RawMessage(`[{"name":"B","style":"primary"}]`)))
	second := f.taggedPins(t, TagTasks)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, `CONFIG_TASKS:[{"name":"B","style":"primary"}]`, second[0].Content)
	assert.Len(t, f.platform.Messages(f.ch), 1)
}

func TestSave_RejectsInvalidJSON(t *testing.T) {
	f := newFixture(t)
	err := f.reg.Save(context.Background(), f.ch, TagTasks, json.RawMessage(`[`))
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSaveTasks_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	want := []model.Task{
		{Name: "Zeta", Style: model.StyleDanger},
		{Name: "Alpha", Style: model.StylePrimary},
		{Name: "Mid", Style: model.StyleSecondary},
	}
	require.NoError(t, f.reg.SaveTasks(ctx, f.ch, want))

	got, err := f.reg.Tasks(ctx, f.ch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveTasks_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.reg.SaveTasks(ctx, f.ch, []model.Task{{Name: "A", Style: "primary"}, {Name: "A", Style: "danger"}})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	err = f.reg.SaveTasks(ctx, f.ch, []model.Task{{Name: "A", Style: "purple"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "style", verr.Field)

	assert.Empty(t, f.platform.Messages(f.ch), "rejected mutations write nothing")
}

func TestSaveTasks_TrimsAndRejectsBlankNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.reg.SaveTasks(ctx, f.ch, []model.Task{{Name: " Read", Style: "primary"}, {Name: "   ", Style: "danger"}})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	assert.Empty(t, f.platform.Messages(f.ch))

	err = f.reg.SaveTasks(ctx, f.ch, []model.Task{{Name: "Read", Style: "primary"}, {Name: " Read ", Style: "danger"}})
	require.ErrorAs(t, err, &verr, "names equal after trimming are duplicates")

	want := []model.Task{{Name: "Read", Style: model.StylePrimary}, {Name: "Write", Style: model.StyleDanger}}
	require.NoError(t, f.reg.SaveTasks(ctx, f.ch, []model.Task{{Name: " Read", Style: "primary"}, {Name: "Write\t", Style: "danger"}}))
	got, err := f.reg.Tasks(ctx, f.ch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAddAndRemoveTask(t *testing.T) {
	f := newFixture(t, WithDefaultTasks([]model.Task{{Name: "Study", Style: model.StylePrimary}}))
	ctx := context.Background()

	tasks, err := f.reg.AddTask(ctx, f.ch, model.Task{Name: "  Guitar  "})
	require.NoError(t, err)
	assert.Equal(t, []model.Task{
		{Name: "Study", Style: model.StylePrimary},
		{Name: "Guitar", Style: model.StyleSecondary},
	}, tasks)

	_, err = f.reg.AddTask(ctx, f.ch, model.Task{Name: "Study"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	tasks, err = f.reg.RemoveTask(ctx, f.ch, "Study")
	require.NoError(t, err)
	assert.Equal(t, []model.Task{{Name: "Guitar", Style: model.StyleSecondary}}, tasks)

	_, err = f.reg.RemoveTask(ctx, f.ch, "Study")
	require.ErrorAs(t, err, &verr)

	stored, err := f.reg.Tasks(ctx, f.ch)
	require.NoError(t, err)
	assert.Equal(t, tasks, stored)
}

func TestAddGoal(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(t,
		WithDefaultTasks([]model.Task{{Name: "Study", Style: model.StylePrimary}}),
		WithClock(clock.NewFake(now)),
	)
	ctx := context.Background()

	goals, err := f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 60, Period: model.PeriodDaily, CustomDays: 5})
	require.NoError(t, err)
	require.Len(t, goals.Lookup("Study"), 1)
	g := goals.Lookup("Study")[0]
	assert.Equal(t, 0, g.CustomDays, "custom days only apply to custom goals")
	assert.True(t, g.CreatedAt.Equal(now))

	goals, err = f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 300, Period: model.PeriodCustom, CustomDays: 7})
	require.NoError(t, err)
	assert.Len(t, goals.Lookup("Study"), 2)

	stored, err := f.reg.Goals(ctx, f.ch)
	require.NoError(t, err)
	require.Len(t, stored.Lookup("Study"), 2)
	assert.Equal(t, 7, stored.Lookup("Study")[1].CustomDays)
	assert.Len(t, f.taggedPins(t, TagGoals), 1)
}

func TestAddGoal_Validation(t *testing.T) {
	f := newFixture(t, WithDefaultTasks([]model.Task{{Name: "Study", Style: model.StylePrimary}}))
	ctx := context.Background()
	var verr *model.ValidationError

	_, err := f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 0, Period: model.PeriodDaily})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target", verr.Field)

	_, err = f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 30, Period: "yearly"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "period", verr.Field)

	_, err = f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 30, Period: model.PeriodCustom})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "custom_days", verr.Field)

	_, err = f.reg.AddGoal(ctx, f.ch, "Nope", model.Goal{Target: 30, Period: model.PeriodDaily})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "task", verr.Field)

	goals, err := f.reg.Goals(ctx, f.ch)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestRemoveGoal(t *testing.T) {
	f := newFixture(t, WithDefaultTasks([]model.Task{{Name: "Study", Style: model.StylePrimary}}))
	ctx := context.Background()

	_, err := f.reg.AddGoal(ctx, f.ch, "Study", model.Goal{Target: 60, Period: model.PeriodDaily})
	require.NoError(t, err)

	_, err = f.reg.RemoveGoal(ctx, f.ch, "Study", 3)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	goals, err := f.reg.RemoveGoal(ctx, f.ch, "Study", 0)
	require.NoError(t, err)
	assert.Empty(t, goals)

	raw, err := f.reg.Load(ctx, f.ch, TagGoals)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}
