package model

import (
	"errors"
	"time"
)

// ErrItemNotFound is returned by item stores when an id cannot be resolved.
var ErrItemNotFound = errors.New("item not found")

// Thumbnail is one rendition of an item preview image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Item is a resolved candidate. Only ID is guaranteed to be set.
type Item struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	ChannelID   string               `json:"channel_id"`
	Channel     string               `json:"channel"`
	Duration    time.Duration        `json:"duration"`
	PublishedAt time.Time            `json:"published_at"`
	Thumbnails  map[string]Thumbnail `json:"thumbnails,omitempty"`
}

// Member is an item's membership in a candidate collection.
type Member struct {
	ItemID  string
	AddedAt time.Time
}
