// ABOUTME: Tests for the SQLite platform backend
// ABOUTME: Exercises channel uniqueness, pin ordering, history ordering, and reopen persistence

package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestPlatform(t *testing.T) (*SQLitePlatform, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "timekeeper.db")
	p, err := NewSQLitePlatform(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, dbPath
}

func TestNewSQLitePlatform_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "timekeeper.db")
	p, err := NewSQLitePlatform(dbPath)
	require.NoError(t, err)
	defer p.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLitePlatform_SchemaCreatedWhole(t *testing.T) {
	p, _ := newSQLiteTestPlatform(t)

	var ddl string
	err := p.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'messages'`).Scan(&ddl)
	require.NoError(t, err)
	for _, col := range []string{"payload", "pin_seq", "edited_at"} {
		assert.Contains(t, ddl, col)
	}
}

func TestSQLitePlatform_Channels(t *testing.T) {
	p, _ := newSQLiteTestPlatform(t)
	store := NewStore(p)
	ctx := context.Background()

	_, err := p.FindChannel(ctx, "g", "data")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.ResolveOrCreate(ctx, "g", "data", Options{Hidden: true, Category: "cat"})
	require.NoError(t, err)

	found, err := store.ResolveOrCreate(ctx, "g", "data", Options{})
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.Hidden)
	assert.Equal(t, "cat", found.Category)
}

func TestSQLitePlatform_MessagesAndPins(t *testing.T) {
	p, _ := newSQLiteTestPlatform(t)
	store := NewStore(p)
	ctx := context.Background()
	ch, err := store.ResolveOrCreate(ctx, "g", "config", Options{})
	require.NoError(t, err)

	var sent []Message
	for i := 0; i < 5; i++ {
		msg, err := store.Send(ctx, ch.ID, fmt.Sprintf("m%d", i), fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	history, err := store.FetchHistory(ctx, ch.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "m4", history[0].Content)
	assert.Equal(t, "p3", history[1].Payload)

	require.NoError(t, store.Pin(ctx, sent[1]))
	require.NoError(t, store.Pin(ctx, sent[3]))
	require.NoError(t, store.Pin(ctx, sent[1]))

	require.NoError(t, store.EditContent(ctx, sent[1], "edited"))

	pins, err := store.ListPinned(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, pins, 2)
	assert.Equal(t, "m3", pins[0].Content)
	assert.Equal(t, "edited", pins[1].Content)
	assert.Equal(t, "p1", pins[1].Payload)

	err = p.PinMessage(ctx, ch.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	err = p.EditMessage(ctx, ch.ID, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Purge(ctx, ch.ID, 2))
	history, err = store.FetchHistory(ctx, ch.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSQLitePlatform_PersistsAcrossReopen(t *testing.T) {
	p, dbPath := newSQLiteTestPlatform(t)
	ctx := context.Background()
	ch, err := p.CreateChannel(ctx, "g", "log", Options{})
	require.NoError(t, err)
	_, err = p.SendMessage(ctx, ch.ID, "hello", "LOG_ID:{}")
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := NewSQLitePlatform(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.History(ctx, ch.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "LOG_ID:{}", msgs[0].Payload)
}
