// Package catalog resolves item metadata and collection membership.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/okian/vidrank/internal/domain/model"
)

// Sentinel kinds for catalog errors.
var (
	ErrItemNotFound       = model.ErrItemNotFound
	ErrCollectionNotFound = errors.New("collection not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	channel_id   TEXT NOT NULL DEFAULT '',
	channel      TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	published_at INTEGER NOT NULL DEFAULT 0,
	thumbnails   TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS playlists (
	id    TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS playlist_items (
	playlist_id TEXT NOT NULL REFERENCES playlists(id),
	item_id     TEXT NOT NULL,
	added_at    INTEGER NOT NULL,
	PRIMARY KEY (playlist_id, item_id)
);
`

// SQLiteCatalog stores items and playlist membership in SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLite opens the catalog at path and creates the schema. Use
// ":memory:" for a throwaway catalog.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Resolve returns the item with id.
func (c *SQLiteCatalog) Resolve(ctx context.Context, id string) (model.Item, error) {
	var (
		item        model.Item
		durationMs  int64
		publishedMs int64
		thumbs      string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, title, description, channel_id, channel, duration_ms, published_at, thumbnails
		FROM items WHERE id = ?`, id).
		Scan(&item.ID, &item.Title, &item.Description, &item.ChannelID, &item.Channel, &durationMs, &publishedMs, &thumbs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("query item %s: %w", id, err)
	}

	item.Duration = time.Duration(durationMs) * time.Millisecond
	if publishedMs != 0 {
		item.PublishedAt = time.UnixMilli(publishedMs).UTC()
	}
	if thumbs != "" && thumbs != "{}" {
		if err := json.Unmarshal([]byte(thumbs), &item.Thumbnails); err != nil {
			return model.Item{}, fmt.Errorf("decode thumbnails of %s: %w", id, err)
		}
	}
	return item, nil
}

// Members returns the items of a playlist in insertion order.
func (c *SQLiteCatalog) Members(ctx context.Context, playlistID string) ([]model.Member, error) {
	var exists int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM playlists WHERE id = ?`, playlistID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, playlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("query playlist %s: %w", playlistID, err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT item_id, added_at FROM playlist_items
		WHERE playlist_id = ? ORDER BY rowid`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("query playlist items: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var (
			m       model.Member
			addedMs int64
		)
		if err := rows.Scan(&m.ItemID, &addedMs); err != nil {
			return nil, fmt.Errorf("scan playlist item: %w", err)
		}
		m.AddedAt = time.UnixMilli(addedMs).UTC()
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertItem inserts or replaces item metadata.
func (c *SQLiteCatalog) UpsertItem(ctx context.Context, item model.Item) error {
	if item.ID == "" {
		return errors.New("item id is empty")
	}
	thumbs, err := json.Marshal(item.Thumbnails)
	if err != nil {
		return fmt.Errorf("marshal thumbnails: %w", err)
	}
	if item.Thumbnails == nil {
		thumbs = []byte("{}")
	}
	var published int64
	if !item.PublishedAt.IsZero() {
		published = item.PublishedAt.UnixMilli()
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO items (id, title, description, channel_id, channel, duration_ms, published_at, thumbnails)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			channel_id = excluded.channel_id,
			channel = excluded.channel,
			duration_ms = excluded.duration_ms,
			published_at = excluded.published_at,
			thumbnails = excluded.thumbnails`,
		item.ID, item.Title, item.Description, item.ChannelID, item.Channel,
		item.Duration.Milliseconds(), published, string(thumbs))
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

// UpsertPlaylist creates a playlist or renames it.
func (c *SQLiteCatalog) UpsertPlaylist(ctx context.Context, id, title string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO playlists (id, title) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title`, id, title)
	if err != nil {
		return fmt.Errorf("upsert playlist %s: %w", id, err)
	}
	return nil
}

// AddMember adds an item to a playlist. Re-adding keeps the original time.
func (c *SQLiteCatalog) AddMember(ctx context.Context, playlistID, itemID string, addedAt time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO playlist_items (playlist_id, item_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT(playlist_id, item_id) DO NOTHING`,
		playlistID, itemID, addedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("add %s to playlist %s: %w", itemID, playlistID, err)
	}
	return nil
}

// CountItems returns the number of items with metadata.
func (c *SQLiteCatalog) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
