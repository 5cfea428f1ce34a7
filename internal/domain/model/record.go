// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Action is what the user did with one item of a judged batch.
type Action string

const (
	ActionSelect  Action = "select"
	ActionNothing Action = "nothing"
	ActionRemove  Action = "remove"
)

// ErrUnknownAction is returned when an action string is not one of the known values.
var ErrUnknownAction = errors.New("unknown action")

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionSelect, ActionNothing, ActionRemove:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionSelect, ActionNothing, ActionRemove:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown actions so stored history is checked on load.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Choice pairs an item with the action taken on it.
type Choice struct {
	ItemID string `json:"video_id"`
	Action Action `json:"action"`
}

// ChoiceSet is the ordered list of choices made for one batch.
type ChoiceSet struct {
	Choices []Choice `json:"choices"`
}

// ItemIDs returns the item ids of the set in choice order.
func (cs ChoiceSet) ItemIDs() []string {
	ids := make([]string, len(cs.Choices))
	for i, c := range cs.Choices {
		ids[i] = c.ItemID
	}
	return ids
}

// Validate checks that every choice names an item and a known action.
func (cs ChoiceSet) Validate() error {
	if len(cs.Choices) == 0 {
		return errors.New("choice set is empty")
	}
	for i, c := range cs.Choices {
		if strings.TrimSpace(c.ItemID) == "" {
			return fmt.Errorf("choice %d: missing video_id", i)
		}
		if !c.Action.Valid() {
			return fmt.Errorf("choice %d: %w: %q", i, ErrUnknownAction, c.Action)
		}
	}
	return nil
}

// Record is one judged batch. Records are immutable once created.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt int64     `json:"created_at"` // unix milliseconds
	ChoiceSet ChoiceSet `json:"choice_set"`
}

// Created returns CreatedAt as a time.Time.
func (r Record) Created() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// Edge is a derived "winner preferred over loser" comparison.
type Edge struct {
	WinnerID string
	LoserID  string
}
