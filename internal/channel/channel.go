// ABOUTME: Channel and message types plus the Platform collaborator interface
// ABOUTME: Sentinel errors shared by all chat platform backends

package channel

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a channel or message does not exist.
var ErrNotFound = errors.New("not found")

// ErrPermissionDenied is returned when the platform refuses an operation
// because the bot lacks rights. It is recoverable.
var ErrPermissionDenied = errors.New("permission denied")

// ErrPinLimit is returned when a channel already holds the maximum number of pins.
var ErrPinLimit = errors.New("pin limit reached")

// ID identifies a channel on its platform.
type ID string

// Channel is a named message stream inside a guild.
type Channel struct {
	ID              ID
	Guild           string
	Name            string
	Category        string
	Hidden          bool
	WriteRestricted bool
}

// Options are the access overrides applied when a channel is created.
type Options struct {
	// Category groups the channel; empty means directly under the guild.
	Category string
	// Hidden hides the channel from ordinary members.
	Hidden bool
	// WriteRestricted stops ordinary members from posting.
	WriteRestricted bool
}

// Message is one chat message. Payload is the auxiliary machine-readable
// field carried alongside the human-readable Content.
type Message struct {
	ID        string
	ChannelID ID
	Content   string
	Payload   string
	Pinned    bool
	CreatedAt time.Time
}

// Platform is the chat platform client the Store is built on.
type Platform interface {
	// FindChannel returns the channel named name in guild, or ErrNotFound.
	FindChannel(ctx context.Context, guild, name string) (Channel, error)
	CreateChannel(ctx context.Context, guild, name string, opts Options) (Channel, error)

	SendMessage(ctx context.Context, ch ID, content, payload string) (Message, error)
	// EditMessage replaces the content of a message. The payload is kept.
	EditMessage(ctx context.Context, ch ID, messageID, content string) error
	PinMessage(ctx context.Context, ch ID, messageID string) error

	// PinnedMessages returns pinned messages, most recently pinned first.
	PinnedMessages(ctx context.Context, ch ID) ([]Message, error)
	// History returns up to limit messages, newest first.
	History(ctx context.Context, ch ID, limit int) ([]Message, error)
	// PurgeMessages deletes up to limit of the newest messages.
	PurgeMessages(ctx context.Context, ch ID, limit int) error
}
