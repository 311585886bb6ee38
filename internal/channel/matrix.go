// ABOUTME: Matrix implementation of Platform using mautrix
// ABOUTME: Spaces are guilds, rooms are channels, m.room.pinned_events are pins

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// payloadKey is the custom content key carrying Message.Payload.
const payloadKey = "io.timekeeper.payload"

var (
	channelStateType = event.Type{Type: "io.timekeeper.channel", Class: event.StateEventType}
	pinnedEventsType = event.Type{Type: "m.room.pinned_events", Class: event.StateEventType}
	spaceParentType  = event.Type{Type: "m.space.parent", Class: event.StateEventType}
	spaceChildType   = event.Type{Type: "m.space.child", Class: event.StateEventType}
)

// channelState marks a room as a timekeeper channel of a guild.
type channelState struct {
	Guild    string `json:"guild"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type pinnedEvents struct {
	Pinned []id.EventID `json:"pinned"`
}

type relatesTo struct {
	RelType string `json:"rel_type"`
	EventID string `json:"event_id"`
}

// messageBody is the subset of m.room.message content we read back.
type messageBody struct {
	Body       string       `json:"body"`
	Payload    string       `json:"io.timekeeper.payload"`
	NewContent *messageBody `json:"m.new_content,omitempty"`
	RelatesTo  *relatesTo   `json:"m.relates_to,omitempty"`
}

func (b messageBody) isEdit() bool {
	return b.RelatesTo != nil && b.RelatesTo.RelType == "m.replace"
}

var _ Platform = (*MatrixPlatform)(nil)

// MatrixPlatform implements Platform on a Matrix homeserver.
//
// A guild is a space room ID. Channels are rooms carrying an
// io.timekeeper.channel state event and linked to their space (or category
// space) with m.space.parent/m.space.child. Edits are sent as m.replace
// relations; reads resolve the latest replacement.
type MatrixPlatform struct {
	client   *mautrix.Client
	logger   *slog.Logger
	markdown goldmark.Markdown
}

// NewMatrixPlatform wraps an authenticated mautrix client.
func NewMatrixPlatform(client *mautrix.Client, logger *slog.Logger) *MatrixPlatform {
	return &MatrixPlatform{
		client:   client,
		logger:   logger.With("component", "matrix-platform"),
		markdown: goldmark.New(),
	}
}

func (m *MatrixPlatform) FindChannel(ctx context.Context, guild, name string) (Channel, error) {
	resp, err := m.client.JoinedRooms(ctx)
	if err != nil {
		return Channel{}, fmt.Errorf("listing joined rooms: %w", mapMatrixError(err))
	}

	for _, roomID := range resp.JoinedRooms {
		var st channelState
		if err := m.client.StateEvent(ctx, roomID, channelStateType, "", &st); err != nil {
			if errors.Is(err, mautrix.MNotFound) || errors.Is(err, mautrix.MForbidden) {
				continue
			}
			return Channel{}, fmt.Errorf("reading channel state of %s: %w", roomID, mapMatrixError(err))
		}
		if st.Guild == guild && st.Name == name {
			return Channel{ID: ID(roomID), Guild: guild, Name: name, Category: st.Category}, nil
		}
	}
	return Channel{}, ErrNotFound
}

func (m *MatrixPlatform) CreateChannel(ctx context.Context, guild, name string, opts Options) (Channel, error) {
	parent := guild
	if opts.Category != "" {
		parent = opts.Category
	}
	server := m.client.UserID.Homeserver()
	emptyKey := ""

	preset := "public_chat"
	if opts.Hidden {
		preset = "private_chat"
	}

	req := &mautrix.ReqCreateRoom{
		Visibility: "private",
		Name:       name,
		Preset:     preset,
		InitialState: []*event.Event{
			{
				Type:     channelStateType,
				StateKey: &emptyKey,
				Content: event.Content{Raw: map[string]any{
					"guild":    guild,
					"name":     name,
					"category": opts.Category,
				}},
			},
			{
				Type:     spaceParentType,
				StateKey: &parent,
				Content: event.Content{Raw: map[string]any{
					"via":       []string{server},
					"canonical": true,
				}},
			},
		},
	}
	if opts.WriteRestricted {
		req.PowerLevelOverride = &event.PowerLevelsEventContent{EventsDefault: 50}
	}

	resp, err := m.client.CreateRoom(ctx, req)
	if err != nil {
		return Channel{}, mapMatrixError(err)
	}

	// The room exists even if linking fails, so a failed link is only logged.
	_, err = m.client.SendStateEvent(ctx, id.RoomID(parent), spaceChildType, resp.RoomID.String(),
		map[string]any{"via": []string{server}})
	if err != nil {
		m.logger.Warn("failed to link channel into space",
			"room", resp.RoomID.String(),
			"space", parent,
			"error", err,
		)
	}

	return Channel{
		ID:              ID(resp.RoomID),
		Guild:           guild,
		Name:            name,
		Category:        opts.Category,
		Hidden:          opts.Hidden,
		WriteRestricted: opts.WriteRestricted,
	}, nil
}

func (m *MatrixPlatform) SendMessage(ctx context.Context, ch ID, content, payload string) (Message, error) {
	body := m.textContent(content)
	if payload != "" {
		body[payloadKey] = payload
	}

	resp, err := m.client.SendMessageEvent(ctx, id.RoomID(ch), event.EventMessage, body)
	if err != nil {
		return Message{}, mapMatrixError(err)
	}
	return Message{
		ID:        resp.EventID.String(),
		ChannelID: ch,
		Content:   content,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// EditMessage sends an m.replace edit. The replacement only carries the new
// text; reads take the payload from the original event.
func (m *MatrixPlatform) EditMessage(ctx context.Context, ch ID, messageID, content string) error {
	body := m.textContent("* " + content)
	body["m.new_content"] = m.textContent(content)
	body["m.relates_to"] = map[string]any{
		"rel_type": "m.replace",
		"event_id": messageID,
	}
	_, err := m.client.SendMessageEvent(ctx, id.RoomID(ch), event.EventMessage, body)
	return mapMatrixError(err)
}

func (m *MatrixPlatform) PinMessage(ctx context.Context, ch ID, messageID string) error {
	pins, err := m.pins(ctx, ch)
	if err != nil {
		return err
	}
	for _, p := range pins.Pinned {
		if p.String() == messageID {
			return nil
		}
	}
	if len(pins.Pinned) >= DefaultPinLimit {
		return ErrPinLimit
	}
	pins.Pinned = append(pins.Pinned, id.EventID(messageID))
	_, err = m.client.SendStateEvent(ctx, id.RoomID(ch), pinnedEventsType, "", &pins)
	return mapMatrixError(err)
}

func (m *MatrixPlatform) PinnedMessages(ctx context.Context, ch ID) ([]Message, error) {
	pins, err := m.pins(ctx, ch)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(pins.Pinned))
	for i := len(pins.Pinned) - 1; i >= 0; i-- {
		msg, err := m.fetchMessage(ctx, ch, pins.Pinned[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		msg.Pinned = true
		out = append(out, msg)
	}
	return out, nil
}

// History pages backwards through /messages until limit messages are
// collected or the room start is reached. Edit events are skipped.
func (m *MatrixPlatform) History(ctx context.Context, ch ID, limit int) ([]Message, error) {
	out := make([]Message, 0, limit)
	from := ""
	for len(out) < limit {
		resp, err := m.client.Messages(ctx, id.RoomID(ch), from, "", mautrix.DirectionBackward, nil, limit-len(out))
		if err != nil {
			return nil, mapMatrixError(err)
		}
		for _, evt := range resp.Chunk {
			if evt.Type.Type != event.EventMessage.Type {
				continue
			}
			var body messageBody
			if err := json.Unmarshal(evt.Content.VeryRaw, &body); err != nil || body.isEdit() {
				continue
			}
			out = append(out, Message{
				ID:        evt.ID.String(),
				ChannelID: ch,
				Content:   body.Body,
				Payload:   body.Payload,
				CreatedAt: time.UnixMilli(evt.Timestamp),
			})
			if len(out) == limit {
				break
			}
		}
		if resp.End == "" || len(resp.Chunk) == 0 {
			break
		}
		from = resp.End
	}
	return out, nil
}

func (m *MatrixPlatform) PurgeMessages(ctx context.Context, ch ID, limit int) error {
	msgs, err := m.History(ctx, ch, limit)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, err := m.client.RedactEvent(ctx, id.RoomID(ch), id.EventID(msg.ID)); err != nil {
			return mapMatrixError(err)
		}
	}
	return nil
}

func (m *MatrixPlatform) pins(ctx context.Context, ch ID) (pinnedEvents, error) {
	var pins pinnedEvents
	err := m.client.StateEvent(ctx, id.RoomID(ch), pinnedEventsType, "", &pins)
	if err != nil && !errors.Is(err, mautrix.MNotFound) {
		return pinnedEvents{}, mapMatrixError(err)
	}
	return pins, nil
}

// fetchMessage loads an event and applies its latest m.replace edit, if any.
func (m *MatrixPlatform) fetchMessage(ctx context.Context, ch ID, eventID id.EventID) (Message, error) {
	evt, err := m.client.GetEvent(ctx, id.RoomID(ch), eventID)
	if err != nil {
		return Message{}, mapMatrixError(err)
	}

	var body messageBody
	if err := json.Unmarshal(evt.Content.VeryRaw, &body); err != nil {
		return Message{}, fmt.Errorf("decoding event %s: %w", eventID, err)
	}

	msg := Message{
		ID:        eventID.String(),
		ChannelID: ch,
		Content:   body.Body,
		Payload:   body.Payload,
		CreatedAt: time.UnixMilli(evt.Timestamp),
	}

	latest, err := m.latestEdit(ctx, ch, eventID)
	if err != nil {
		return Message{}, err
	}
	if latest != nil {
		msg.Content = latest.Body
	}
	return msg, nil
}

// latestEdit returns the newest m.new_content replacing eventID, or nil.
func (m *MatrixPlatform) latestEdit(ctx context.Context, ch ID, eventID id.EventID) (*messageBody, error) {
	url := m.client.BuildURLWithQuery(
		mautrix.ClientURLPath{"v1", "rooms", string(ch), "relations", eventID.String(), "m.replace"},
		map[string]string{"dir": "b", "limit": "1"},
	)
	var resp struct {
		Chunk []struct {
			Content messageBody `json:"content"`
		} `json:"chunk"`
	}
	if _, err := m.client.MakeRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, mapMatrixError(err)
	}
	for _, c := range resp.Chunk {
		if c.Content.NewContent != nil {
			return c.Content.NewContent, nil
		}
	}
	return nil, nil
}

// textContent builds m.text content with an HTML rendering of the markdown body.
func (m *MatrixPlatform) textContent(text string) map[string]any {
	content := map[string]any{
		"msgtype": "m.text",
		"body":    text,
	}
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(text), &buf); err == nil {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = strings.TrimSpace(buf.String())
	}
	return content
}

// mapMatrixError translates Matrix error codes into package sentinels.
func mapMatrixError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mautrix.MForbidden):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, mautrix.MNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
