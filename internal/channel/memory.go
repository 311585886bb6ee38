// ABOUTME: In-memory Platform implementation for tests and the memory backend
// ABOUTME: Supports permission denial and failure injection per operation

package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names accepted by MemoryPlatform.Deny and MemoryPlatform.Fail.
const (
	OpFind    = "find"
	OpCreate  = "create"
	OpSend    = "send"
	OpEdit    = "edit"
	OpPin     = "pin"
	OpPins    = "pins"
	OpHistory = "history"
	OpPurge   = "purge"
)

type memChannel struct {
	Channel
	messages []*Message // oldest first
	pins     []string   // pin order, oldest first
}

var _ Platform = (*MemoryPlatform)(nil)

// MemoryPlatform is an in-memory Platform.
type MemoryPlatform struct {
	mu       sync.Mutex
	channels map[ID]*memChannel
	denied   map[string]bool
	failures map[string]error
	pinCap   int
}

// NewMemoryPlatform creates an empty MemoryPlatform.
func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		channels: make(map[ID]*memChannel),
		denied:   make(map[string]bool),
		failures: make(map[string]error),
		pinCap:   DefaultPinLimit,
	}
}

// Deny makes op fail with ErrPermissionDenied until Allow is called.
func (m *MemoryPlatform) Deny(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[op] = true
}

// Allow clears a Deny.
func (m *MemoryPlatform) Allow(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.denied, op)
}

// Fail makes op return err until Fail(op, nil) is called.
func (m *MemoryPlatform) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Messages returns a copy of the messages in ch, oldest first.
func (m *MemoryPlatform) Messages(ch ID) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[ch]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(c.messages))
	for _, msg := range c.messages {
		out = append(out, *msg)
	}
	return out
}

// Channels returns every channel, in no particular order.
func (m *MemoryPlatform) Channels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, c.Channel)
	}
	return out
}

// check must be called with mu held.
func (m *MemoryPlatform) check(op string) error {
	if m.denied[op] {
		return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	}
	if err := m.failures[op]; err != nil {
		return err
	}
	return nil
}

func (m *MemoryPlatform) FindChannel(ctx context.Context, guild, name string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpFind); err != nil {
		return Channel{}, err
	}
	for _, c := range m.channels {
		if c.Guild == guild && c.Name == name {
			return c.Channel, nil
		}
	}
	return Channel{}, ErrNotFound
}

func (m *MemoryPlatform) CreateChannel(ctx context.Context, guild, name string, opts Options) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpCreate); err != nil {
		return Channel{}, err
	}
	c := &memChannel{Channel: Channel{
		ID:              ID(uuid.New().String()),
		Guild:           guild,
		Name:            name,
		Category:        opts.Category,
		Hidden:          opts.Hidden,
		WriteRestricted: opts.WriteRestricted,
	}}
	m.channels[c.ID] = c
	return c.Channel, nil
}

func (m *MemoryPlatform) SendMessage(ctx context.Context, ch ID, content, payload string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpSend); err != nil {
		return Message{}, err
	}
	c, ok := m.channels[ch]
	if !ok {
		return Message{}, fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	msg := &Message{
		ID:        uuid.New().String(),
		ChannelID: ch,
		Content:   content,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	c.messages = append(c.messages, msg)
	return *msg, nil
}

func (m *MemoryPlatform) EditMessage(ctx context.Context, ch ID, messageID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpEdit); err != nil {
		return err
	}
	msg, err := m.findMessage(ch, messageID)
	if err != nil {
		return err
	}
	msg.Content = content
	return nil
}

func (m *MemoryPlatform) PinMessage(ctx context.Context, ch ID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpPin); err != nil {
		return err
	}
	msg, err := m.findMessage(ch, messageID)
	if err != nil {
		return err
	}
	if msg.Pinned {
		return nil
	}
	c := m.channels[ch]
	if len(c.pins) >= m.pinCap {
		return ErrPinLimit
	}
	msg.Pinned = true
	c.pins = append(c.pins, messageID)
	return nil
}

func (m *MemoryPlatform) PinnedMessages(ctx context.Context, ch ID) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpPins); err != nil {
		return nil, err
	}
	c, ok := m.channels[ch]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	out := make([]Message, 0, len(c.pins))
	for i := len(c.pins) - 1; i >= 0; i-- {
		if msg, err := m.findMessage(ch, c.pins[i]); err == nil {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *MemoryPlatform) History(ctx context.Context, ch ID, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpHistory); err != nil {
		return nil, err
	}
	c, ok := m.channels[ch]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	if limit <= 0 {
		return []Message{}, nil
	}
	out := make([]Message, 0, min(limit, len(c.messages)))
	for i := len(c.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *c.messages[i])
	}
	return out, nil
}

func (m *MemoryPlatform) PurgeMessages(ctx context.Context, ch ID, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpPurge); err != nil {
		return err
	}
	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	n := max(0, min(limit, len(c.messages)))
	removed := c.messages[len(c.messages)-n:]
	c.messages = c.messages[:len(c.messages)-n]
	for _, msg := range removed {
		for i, id := range c.pins {
			if id == msg.ID {
				c.pins = append(c.pins[:i], c.pins[i+1:]...)
				break
			}
		}
	}
	return nil
}

// findMessage must be called with mu held.
func (m *MemoryPlatform) findMessage(ch ID, messageID string) (*Message, error) {
	c, ok := m.channels[ch]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", ch, ErrNotFound)
	}
	for _, msg := range c.messages {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
}
