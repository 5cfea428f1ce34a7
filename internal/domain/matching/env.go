// Package matching selects the next batch of items to judge.
//
// All collaborators of a match are carried by an explicit Env value built
// once by the caller; the package holds no global state.
package matching

import (
	"context"
	"io"
	"time"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	"github.com/okian/vidrank/pkg/logger"
)

// RecordSource returns the ordered judgment history.
type RecordSource interface {
	Records(ctx context.Context) ([]model.Record, error)
}

// CandidateSource lists the members of a collection with the time each was added.
type CandidateSource interface {
	Members(ctx context.Context, collection string) ([]model.Member, error)
}

// ItemStore resolves item ids. A failed resolution skips the id.
type ItemStore interface {
	Resolve(ctx context.Context, id string) (model.Item, error)
}

// Env is the explicit context shared by every match call.
type Env struct {
	Records    RecordSource
	Pool       CandidateSource
	Items      ItemStore
	Collection string
	RNG        RNG
	Rater      rating.Ranker
	Clock      func() time.Time
	Logger     logger.Logger
}

func (e Env) withDefaults() (Env, error) {
	if e.Records == nil || e.Pool == nil || e.Items == nil || e.RNG == nil {
		return e, ErrIncompleteEnv
	}
	if e.Rater == nil {
		e.Rater = rating.NewEngine()
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
	if e.Logger == nil {
		e.Logger = logger.New(logger.WithOutput(io.Discard))
	}
	return e, nil
}
