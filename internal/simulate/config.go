// Package simulate drives a running vidrank server with a synthetic judge
// whose preferences follow a hidden quality per video, then checks how well
// the served ranking recovers that quality.
package simulate

import (
	"time"

	"github.com/goccy/go-json"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string          // Base URL of the service
	Rounds   int             // Number of batches to judge
	Selects  int             // Videos selected per batch; the rest get nothing
	Noise    float64         // Std deviation of the judge's perception noise
	Seed     uint64          // Seeds the judge
	Timeout  time.Duration   // HTTP request timeout
	Settings json.RawMessage // matching_settings sent with every request; nil uses the server default
}

// Report summarises a run.
type Report struct {
	Rounds     int
	Records    int
	Duplicates int
	Ranked     int
	// Spearman is the rank correlation between the served ranking and the
	// hidden quality, in [-1, 1].
	Spearman float64
	Duration time.Duration
}

type video struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type choice struct {
	VideoID string `json:"video_id"`
	Action  string `json:"action"`
}

type choiceSet struct {
	Choices []choice `json:"choices"`
}

type settings struct {
	MatchingSettings json.RawMessage `json:"matching_settings,omitempty"`
}

type videosRequest struct {
	Settings settings `json:"settings"`
}

type videosResponse struct {
	Videos []video `json:"videos"`
}

type submitRequest struct {
	ChoiceSet choiceSet `json:"choice_set"`
	Settings  settings  `json:"settings"`
}

type submitResponse struct {
	RecordID  string  `json:"record_id"`
	Duplicate bool    `json:"duplicate"`
	Videos    []video `json:"videos"`
}

type rankingsResponse struct {
	Rankings []struct {
		Video  video   `json:"video"`
		Rank   int     `json:"rank"`
		Rating float64 `json:"rating"`
	} `json:"rankings"`
}

type statusResponse struct {
	Status string `json:"status"`
}
