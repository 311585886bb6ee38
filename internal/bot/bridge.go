// ABOUTME: Matrix sync loop that routes prefixed room messages to Commands
// ABOUTME: Replayed events are dropped by event ID before any command runs

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-timekeeper/internal/dedupe"
)

// BridgeConfig controls which messages the bridge answers.
type BridgeConfig struct {
	CommandPrefix string
	AllowedRooms  []string
	AllowedUsers  []string
}

// Bridge answers text commands in Matrix rooms.
type Bridge struct {
	config   BridgeConfig
	matrix   *mautrix.Client
	commands *Commands
	seen     *dedupe.Cache
	logger   *slog.Logger

	// ctx is the parent context for command goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge on an authenticated client.
func NewBridge(cfg BridgeConfig, client *mautrix.Client, commands *Commands, seen *dedupe.Cache, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		config:   cfg,
		matrix:   client,
		commands: commands,
		seen:     seen,
		logger:   logger.With("component", "bridge"),
	}
}

// Run syncs until ctx is cancelled or the sync fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge", "user_id", b.matrix.UserID.String(), "prefix", b.config.CommandPrefix)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.matrix.UserID {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	// Edits arrive as new events; only original messages are commands.
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return
	}

	text, ok := b.accept(evt.RoomID.String(), evt.Sender.String(), content.Body)
	if !ok {
		return
	}
	if b.seen != nil && b.seen.CheckAndMark(evt.ID.String()) {
		b.logger.Debug("dropping replayed event", "event", evt.ID.String())
		return
	}

	b.logger.Info("received command", "room", evt.RoomID.String(), "sender", evt.Sender.String(), "command", truncate(text, 50))
	go b.process(b.ctx, evt.RoomID, Command{Sender: evt.Sender.String(), EventID: evt.ID.String(), Text: text})
}

// accept applies the room, user, and prefix filters and returns the command
// text with the prefix removed.
func (b *Bridge) accept(room, sender, body string) (string, bool) {
	if len(b.config.AllowedRooms) > 0 && !slices.Contains(b.config.AllowedRooms, room) {
		return "", false
	}
	if len(b.config.AllowedUsers) > 0 && !slices.Contains(b.config.AllowedUsers, sender) {
		return "", false
	}
	text, ok := strings.CutPrefix(strings.TrimSpace(body), b.config.CommandPrefix)
	if !ok {
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// commandTimeout bounds one command including its platform writes.
const commandTimeout = 60 * time.Second

func (b *Bridge) process(ctx context.Context, room id.RoomID, cmd Command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply, err := b.commands.Handle(ctx, cmd)
	if err != nil {
		b.logger.Error("command failed", "room", room.String(), "command", truncate(cmd.Text, 50), "error", err)
		reply = "Something went wrong, please try again."
	}
	if reply == "" {
		return
	}
	b.reply(room, reply)
}

func (b *Bridge) reply(room id.RoomID, markdown string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	content := format.RenderMarkdown(markdown, true, false)
	if _, err := b.matrix.SendMessageEvent(ctx, room, event.EventMessage, &content); err != nil {
		b.logger.Error("failed to send reply", "room", room.String(), "error", err)
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
