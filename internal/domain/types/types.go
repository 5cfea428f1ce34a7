// Package types contains common types used across the application.
package types

import "github.com/okian/vidrank/internal/domain/model"

// Entry is one row of the global ranking.
type Entry struct {
	ItemID string  `json:"video_id"`
	Rank   int     `json:"rank"`
	Rating float64 `json:"rating"`
}

// RankedItem is a ranking row joined with its resolved item.
type RankedItem struct {
	Item   model.Item `json:"video"`
	Rank   int        `json:"rank"`
	Rating float64    `json:"rating"`
}
