// Package rating turns judgment records into a global skill ranking.
//
// Records are reduced to directed comparisons (ExtractEdges), folded through
// the two-player TrueSkill win update (Engine.Compute) and sorted into a
// dense 1-based ranking (BuildRanking). Everything is recomputed from the
// records on each call; no rating state outlives a call.
package rating

import (
	"math"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/types"
)

// Default TrueSkill parameters.
const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
	DefaultBeta  = DefaultSigma / 2
	DefaultTau   = DefaultSigma / 100

	// minVariance keeps posterior variances strictly positive.
	minVariance = 1e-12
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPrior sets the belief given to an item the first time it appears in an edge.
func WithPrior(mu, sigma float64) Option {
	return func(e *Engine) {
		if sigma > 0 && !math.IsNaN(mu) && !math.IsInf(mu, 0) {
			e.mu = mu
			e.sigma = sigma
		}
	}
}

// WithBeta sets the performance standard deviation.
func WithBeta(beta float64) Option {
	return func(e *Engine) {
		if beta > 0 {
			e.beta = beta
		}
	}
}

// WithTau sets the dynamics factor added to each variance before an update.
// Zero disables it.
func WithTau(tau float64) Option {
	return func(e *Engine) {
		if tau >= 0 {
			e.tau = tau
		}
	}
}

// Belief is the Gaussian skill estimate of one item.
type Belief struct {
	Mu    float64
	Sigma float64
}

// Beliefs maps item ids to beliefs and remembers discovery order.
type Beliefs struct {
	order []string
	byID  map[string]Belief
}

func newBeliefs() *Beliefs {
	return &Beliefs{byID: make(map[string]Belief)}
}

// Get returns the belief for id.
func (b *Beliefs) Get(id string) (Belief, bool) {
	v, ok := b.byID[id]
	return v, ok
}

// Len returns the number of rated items.
func (b *Beliefs) Len() int { return len(b.order) }

// IDs returns item ids in the order they were first seen.
func (b *Beliefs) IDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (b *Beliefs) getOrInit(id string, prior Belief) Belief {
	if v, ok := b.byID[id]; ok {
		return v
	}
	b.order = append(b.order, id)
	b.byID[id] = prior
	return prior
}

// Ranker computes a ranking from the judgment history.
type Ranker interface {
	Rank(records []model.Record) []types.Entry
}

// Engine applies sequential TrueSkill updates for 1-vs-1 wins with no draws.
type Engine struct {
	mu    float64
	sigma float64
	beta  float64
	tau   float64
}

// NewEngine creates an engine with the standard TrueSkill defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		mu:    DefaultMu,
		sigma: DefaultSigma,
		beta:  DefaultBeta,
		tau:   DefaultTau,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prior returns the belief assigned to unseen items.
func (e *Engine) Prior() Belief {
	return Belief{Mu: e.mu, Sigma: e.sigma}
}

// Compute folds edges in order into a belief per item. The result depends on
// edge order; callers must pass edges exactly as ExtractEdges produced them.
func (e *Engine) Compute(edges []model.Edge) *Beliefs {
	beliefs := newBeliefs()
	prior := e.Prior()
	for _, edge := range edges {
		w := beliefs.getOrInit(edge.WinnerID, prior)
		l := beliefs.getOrInit(edge.LoserID, prior)
		w, l = e.Update(w, l)
		beliefs.byID[edge.WinnerID] = w
		beliefs.byID[edge.LoserID] = l
	}
	return beliefs
}

// Rank runs edge extraction, rating and ranking over records.
func (e *Engine) Rank(records []model.Record) []types.Entry {
	return BuildRanking(e.Compute(ExtractEdges(records)))
}

// Update returns the posterior beliefs of a winner and a loser after one game.
func (e *Engine) Update(winner, loser Belief) (Belief, Belief) {
	tau2 := e.tau * e.tau
	wVar := winner.Sigma*winner.Sigma + tau2
	lVar := loser.Sigma*loser.Sigma + tau2

	c2 := 2*e.beta*e.beta + wVar + lVar
	c := math.Sqrt(c2)
	t := (winner.Mu - loser.Mu) / c

	v := vWin(t)
	w := v * (v + t)

	newWinner := Belief{
		Mu:    winner.Mu + wVar/c*v,
		Sigma: math.Sqrt(math.Max(wVar*(1-wVar/c2*w), minVariance)),
	}
	newLoser := Belief{
		Mu:    loser.Mu - lVar/c*v,
		Sigma: math.Sqrt(math.Max(lVar*(1-lVar/c2*w), minVariance)),
	}
	return newWinner, newLoser
}

// vWin is the additive mean correction for a win with zero draw margin.
func vWin(t float64) float64 {
	denom := normCDF(t)
	if denom > 0 {
		return normPDF(t) / denom
	}
	// Asymptote of pdf/cdf for very negative t.
	return -t
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
