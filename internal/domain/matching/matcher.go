package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	"github.com/okian/vidrank/internal/domain/types"
	"github.com/okian/vidrank/pkg/logger"
	"github.com/okian/vidrank/pkg/metrics"
)

// windowEpsilon absorbs float error when a fraction of the pool is rounded up.
const windowEpsilon = 1e-9

// Matcher runs matching strategies against an Env.
//
// A Matcher is not safe for concurrent use unless its RNG is.
type Matcher struct {
	env Env
}

// New builds a Matcher. Records, Pool, Items and RNG are required.
func New(env Env) (*Matcher, error) {
	env, err := env.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Matcher{env: env}, nil
}

// snapshot is the state a single match call works on.
type snapshot struct {
	records  []model.Record
	members  []model.Member
	excluded map[string]struct{}
}

// Match returns up to n resolved items chosen by s. A nil s means Random.
// Fewer than n items are returned when candidates run out. If ctx is
// cancelled mid-resolution the items resolved so far are returned with the
// context error.
func (m *Matcher) Match(ctx context.Context, s Strategy, n int) ([]model.Item, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, n)
	}
	if s == nil {
		s = Random{}
	}
	if err := Validate(s); err != nil {
		return nil, err
	}

	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	items, err := m.run(ctx, snap, s, n)
	metrics.RecordMatch(s.Name())
	metrics.RecordMatchLatency(s.Name(), float64(time.Since(start).Microseconds())/1000)
	metrics.RecordItemsServed(len(items))
	return items, err
}

func (m *Matcher) load(ctx context.Context) (snapshot, error) {
	records, err := m.env.Records.Records(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("load records: %w", err)
	}
	members, err := m.env.Pool.Members(ctx, m.env.Collection)
	if err != nil {
		return snapshot{}, fmt.Errorf("load collection %q: %w", m.env.Collection, err)
	}
	return snapshot{
		records:  records,
		members:  members,
		excluded: rating.RemovedIDs(records),
	}, nil
}

func (m *Matcher) run(ctx context.Context, snap snapshot, s Strategy, n int) ([]model.Item, error) {
	switch v := s.(type) {
	case Random:
		return m.random(ctx, snap, n)
	case ByRating:
		return m.byRating(ctx, snap, n)
	case Finetune:
		return m.finetune(ctx, snap, v, n)
	case ByDate:
		return m.byDate(ctx, snap, v, n)
	case Balanced:
		r := m.env.RNG.Float64()
		m.env.Logger.Debug(ctx, "balanced draw",
			logger.Float64("r", r),
			logger.Float64("random_fraction", v.RandomFraction),
		)
		if r < v.RandomFraction {
			return m.random(ctx, snap, n)
		}
		return m.byRating(ctx, snap, n)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownStrategy, s)
	}
}

func (m *Matcher) random(ctx context.Context, snap snapshot, n int) ([]model.Item, error) {
	ids := snap.poolIDs()
	m.env.RNG.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return m.resolve(ctx, ids, n)
}

func (m *Matcher) byRating(ctx context.Context, snap snapshot, n int) ([]model.Item, error) {
	ranked := m.rankedCandidates(snap)
	if len(ranked) < n {
		return m.fallback(ctx, snap, NameByRating, len(ranked), n)
	}

	anchor := ranked[m.env.RNG.IntN(len(ranked))]
	m.env.Logger.Debug(ctx, "rating anchor",
		logger.String("item_id", anchor.ItemID),
		logger.Int("rank", anchor.Rank),
		logger.Float64("rating", anchor.Rating),
	)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Rating-anchor.Rating) < math.Abs(ranked[j].Rating-anchor.Rating)
	})
	return m.resolve(ctx, entryIDs(ranked), n)
}

func (m *Matcher) finetune(ctx context.Context, snap snapshot, s Finetune, n int) ([]model.Item, error) {
	ranked := m.rankedCandidates(snap)
	top := ranked[:windowSize(s.Fraction, len(ranked))]
	if len(top) < n {
		return m.fallback(ctx, snap, NameFinetune, len(top), n)
	}
	return m.resolve(ctx, permute(m.env.RNG, entryIDs(top)), n)
}

// windowSize is ceil(fraction*total), ignoring float error just above an
// integer (0.07*100 is 7.000000000000001).
func windowSize(fraction float64, total int) int {
	k := int(math.Ceil(fraction*float64(total) - windowEpsilon))
	return min(max(k, 0), total)
}

func (m *Matcher) byDate(ctx context.Context, snap snapshot, s ByDate, n int) ([]model.Item, error) {
	members := make([]model.Member, len(snap.members))
	copy(members, snap.members)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].AddedAt.After(members[j].AddedAt)
	})

	cutoff := m.env.Clock().Add(-time.Duration(s.Days) * 24 * time.Hour)
	seen := make(map[string]struct{}, len(members))
	ids := make([]string, 0, len(members))
	for _, mem := range members {
		if mem.AddedAt.Before(cutoff) {
			break
		}
		if _, ok := snap.excluded[mem.ItemID]; ok {
			continue
		}
		if _, ok := seen[mem.ItemID]; ok {
			continue
		}
		seen[mem.ItemID] = struct{}{}
		ids = append(ids, mem.ItemID)
	}
	if len(ids) < n {
		return m.fallback(ctx, snap, NameByDate, len(ids), n)
	}
	return m.resolve(ctx, permute(m.env.RNG, ids), n)
}

// fallback serves a Random batch in place of a strategy that lacked candidates.
func (m *Matcher) fallback(ctx context.Context, snap snapshot, requested string, eligible, n int) ([]model.Item, error) {
	m.env.Logger.Warn(ctx, "not enough eligible items, falling back to random",
		logger.String("strategy", requested),
		logger.Int("eligible", eligible),
		logger.Int("requested", n),
	)
	metrics.RecordFallback(requested)
	return m.random(ctx, snap, n)
}

// rankedCandidates returns the ranking restricted to non-excluded pool members,
// highest rating first.
func (m *Matcher) rankedCandidates(snap snapshot) []types.Entry {
	start := time.Now()
	ranking := m.env.Rater.Rank(snap.records)
	metrics.RecordRanking(float64(time.Since(start).Microseconds())/1000, len(ranking))

	pool := make(map[string]struct{}, len(snap.members))
	for _, mem := range snap.members {
		pool[mem.ItemID] = struct{}{}
	}
	out := make([]types.Entry, 0, len(ranking))
	for _, e := range ranking {
		if _, ok := pool[e.ItemID]; !ok {
			continue
		}
		if _, ok := snap.excluded[e.ItemID]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolve walks ids in order until n items resolve or ids run out.
func (m *Matcher) resolve(ctx context.Context, ids []string, n int) ([]model.Item, error) {
	items := make([]model.Item, 0, min(n, len(ids)))
	for _, id := range ids {
		if len(items) == n {
			break
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, err := m.env.Items.Resolve(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return items, ctxErr
			}
			reason := "error"
			if errors.Is(err, model.ErrItemNotFound) {
				reason = "not_found"
			}
			metrics.RecordResolveFailure(reason)
			m.env.Logger.Debug(ctx, "skipping unresolvable item",
				logger.String("item_id", id),
				logger.Error(err),
			)
			continue
		}
		if item.ID == "" {
			item.ID = id
		}
		items = append(items, item)
	}
	return items, nil
}

// poolIDs returns non-excluded member ids once each, in source order.
func (s snapshot) poolIDs() []string {
	seen := make(map[string]struct{}, len(s.members))
	ids := make([]string, 0, len(s.members))
	for _, mem := range s.members {
		if _, ok := s.excluded[mem.ItemID]; ok {
			continue
		}
		if _, ok := seen[mem.ItemID]; ok {
			continue
		}
		seen[mem.ItemID] = struct{}{}
		ids = append(ids, mem.ItemID)
	}
	return ids
}

func entryIDs(entries []types.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ItemID
	}
	return ids
}

func permute(rng RNG, ids []string) []string {
	out := make([]string, len(ids))
	for i, p := range rng.Perm(len(ids)) {
		out[i] = ids[p]
	}
	return out
}
