// ABOUTME: SQLite implementation of Platform using modernc.org/sqlite
// ABOUTME: Embedded stand-in for a chat platform with the same pin and history contract

package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ Platform = (*SQLitePlatform)(nil)

// SQLitePlatform implements Platform on an embedded SQLite database.
// There are no members and no permissions, so it never returns
// ErrPermissionDenied; Options are recorded but not enforced.
type SQLitePlatform struct {
	db     *sql.DB
	pinCap int
}

// NewSQLitePlatform opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLitePlatform(path string) (*SQLitePlatform, error) {
	logger := slog.Default().With("component", "sqlite-platform")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	p := &SQLitePlatform{
		db:     db,
		pinCap: DefaultPinLimit,
	}

	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite platform initialized", "path", path)
	return p, nil
}

// Close closes the database.
func (p *SQLitePlatform) Close() error {
	return p.db.Close()
}

func (p *SQLitePlatform) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS channels (
			id               TEXT PRIMARY KEY,
			guild            TEXT NOT NULL,
			name             TEXT NOT NULL,
			category         TEXT NOT NULL DEFAULT '',
			hidden           INTEGER NOT NULL DEFAULT 0,
			write_restricted INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_guild_name
			ON channels(guild, name);

		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			channel_id TEXT NOT NULL,
			content    TEXT NOT NULL,
			payload    TEXT NOT NULL DEFAULT '',
			pin_seq    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			edited_at  TEXT,
			FOREIGN KEY (channel_id) REFERENCES channels(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_channel_seq
			ON messages(channel_id, seq);
	`
	_, err := p.db.Exec(schema)
	return err
}

func (p *SQLitePlatform) FindChannel(ctx context.Context, guild, name string) (Channel, error) {
	var c Channel
	var hidden, restricted int
	err := p.db.QueryRowContext(ctx, `
		SELECT id, guild, name, category, hidden, write_restricted
		FROM channels WHERE guild = ? AND name = ?
	`, guild, name).Scan(&c.ID, &c.Guild, &c.Name, &c.Category, &hidden, &restricted)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	c.Hidden = hidden != 0
	c.WriteRestricted = restricted != 0
	return c, nil
}

func (p *SQLitePlatform) CreateChannel(ctx context.Context, guild, name string, opts Options) (Channel, error) {
	c := Channel{
		ID:              ID(uuid.New().String()),
		Guild:           guild,
		Name:            name,
		Category:        opts.Category,
		Hidden:          opts.Hidden,
		WriteRestricted: opts.WriteRestricted,
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO channels (id, guild, name, category, hidden, write_restricted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Guild, c.Name, c.Category, boolInt(c.Hidden), boolInt(c.WriteRestricted),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Channel{}, err
	}
	return c, nil
}

func (p *SQLitePlatform) SendMessage(ctx context.Context, ch ID, content, payload string) (Message, error) {
	msg := Message{
		ID:        uuid.New().String(),
		ChannelID: ch,
		Content:   content,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, content, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, string(ch), msg.Content, msg.Payload, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (p *SQLitePlatform) EditMessage(ctx context.Context, ch ID, messageID, content string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, edited_at = ? WHERE id = ? AND channel_id = ?
	`, content, time.Now().UTC().Format(time.RFC3339Nano), messageID, string(ch))
	if err != nil {
		return err
	}
	return requireRow(res, messageID)
}

func (p *SQLitePlatform) PinMessage(ctx context.Context, ch ID, messageID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var pinSeq, pinned int
	err = tx.QueryRowContext(ctx, `
		SELECT pin_seq FROM messages WHERE id = ? AND channel_id = ?
	`, messageID, string(ch)).Scan(&pinSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if pinSeq > 0 {
		return nil
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE channel_id = ? AND pin_seq > 0
	`, string(ch)).Scan(&pinned); err != nil {
		return err
	}
	if pinned >= p.pinCap {
		return ErrPinLimit
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET pin_seq = (SELECT COALESCE(MAX(pin_seq), 0) + 1 FROM messages WHERE channel_id = ?)
		WHERE id = ?
	`, string(ch), messageID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *SQLitePlatform) PinnedMessages(ctx context.Context, ch ID) ([]Message, error) {
	return p.queryMessages(ctx, `
		SELECT id, channel_id, content, payload, pin_seq, created_at
		FROM messages WHERE channel_id = ? AND pin_seq > 0
		ORDER BY pin_seq DESC LIMIT ?
	`, string(ch), p.pinCap)
}

func (p *SQLitePlatform) History(ctx context.Context, ch ID, limit int) ([]Message, error) {
	return p.queryMessages(ctx, `
		SELECT id, channel_id, content, payload, pin_seq, created_at
		FROM messages WHERE channel_id = ?
		ORDER BY seq DESC LIMIT ?
	`, string(ch), limit)
}

func (p *SQLitePlatform) PurgeMessages(ctx context.Context, ch ID, limit int) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM messages WHERE seq IN (
			SELECT seq FROM messages WHERE channel_id = ? ORDER BY seq DESC LIMIT ?
		)
	`, string(ch), limit)
	return err
}

func (p *SQLitePlatform) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var channelID, createdAt string
		var pinSeq int
		if err := rows.Scan(&m.ID, &channelID, &m.Content, &m.Payload, &pinSeq, &createdAt); err != nil {
			return nil, err
		}
		m.ChannelID = ID(channelID)
		m.Pinned = pinSeq > 0
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func requireRow(res sql.Result, messageID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
