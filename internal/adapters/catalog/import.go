package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/vidrank/internal/domain/model"
)

// File is the YAML layout accepted by Import.
//
//	items:
//	  - id: abc
//	    title: Some video
//	    duration: 3m20s
//	playlists:
//	  - id: PL1
//	    members:
//	      - id: abc
//	        added_at: 2024-05-01T10:00:00Z
type File struct {
	Items     []FileItem     `yaml:"items"`
	Playlists []FilePlaylist `yaml:"playlists"`
}

// FileItem is one item entry of an import file.
type FileItem struct {
	ID          string                     `yaml:"id"`
	Title       string                     `yaml:"title"`
	Description string                     `yaml:"description"`
	ChannelID   string                     `yaml:"channel_id"`
	Channel     string                     `yaml:"channel"`
	Duration    time.Duration              `yaml:"duration"`
	PublishedAt time.Time                  `yaml:"published_at"`
	Thumbnails  map[string]model.Thumbnail `yaml:"thumbnails"`
}

// FilePlaylist is one playlist entry of an import file.
type FilePlaylist struct {
	ID      string       `yaml:"id"`
	Title   string       `yaml:"title"`
	Members []FileMember `yaml:"members"`
}

// FileMember is a playlist membership. A zero AddedAt means the import time.
type FileMember struct {
	ID      string    `yaml:"id"`
	AddedAt time.Time `yaml:"added_at"`
}

// ImportStats reports what an import wrote.
type ImportStats struct {
	Items     int
	Playlists int
	Members   int
}

// ImportFile loads a YAML file into the catalog.
func (c *SQLiteCatalog) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return c.Import(ctx, f, time.Now())
}

// Import loads YAML from r. now stamps members without an added_at.
func (c *SQLiteCatalog) Import(ctx context.Context, r io.Reader, now time.Time) (ImportStats, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return ImportStats{}, fmt.Errorf("decode import file: %w", err)
	}

	var stats ImportStats
	for _, it := range file.Items {
		if err := c.UpsertItem(ctx, model.Item{
			ID:          it.ID,
			Title:       it.Title,
			Description: it.Description,
			ChannelID:   it.ChannelID,
			Channel:     it.Channel,
			Duration:    it.Duration,
			PublishedAt: it.PublishedAt,
			Thumbnails:  it.Thumbnails,
		}); err != nil {
			return stats, err
		}
		stats.Items++
	}
	for _, pl := range file.Playlists {
		if pl.ID == "" {
			return stats, fmt.Errorf("playlist %d has no id", stats.Playlists)
		}
		if err := c.UpsertPlaylist(ctx, pl.ID, pl.Title); err != nil {
			return stats, err
		}
		stats.Playlists++
		for _, m := range pl.Members {
			added := m.AddedAt
			if added.IsZero() {
				added = now
			}
			if err := c.AddMember(ctx, pl.ID, m.ID, added); err != nil {
				return stats, err
			}
			stats.Members++
		}
	}
	return stats, nil
}
