// Package service provides the core business service behind the HTTP API
// and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/vidrank/internal/adapters/catalog"
	"github.com/okian/vidrank/internal/adapters/repository"
	"github.com/okian/vidrank/internal/domain/dedupe"
	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	"github.com/okian/vidrank/internal/domain/types"
	"github.com/okian/vidrank/pkg/logger"
	"github.com/okian/vidrank/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrMissingLog      = errors.New("judgment log is required")
	ErrMissingCatalog  = errors.New("catalog is required")
	ErrInvalidChoices  = errors.New("invalid choice set")
	ErrRecordNotFound  = repository.ErrRecordNotFound
	ErrUnknownStrategy = matching.ErrUnknownStrategy
	ErrInvalidSettings = matching.ErrInvalidSettings

	// ErrCollectionNotFound means the configured playlist is not in the catalog.
	ErrCollectionNotFound = catalog.ErrCollectionNotFound
)

// Service wires the judgment log, the catalog and the ranking engine.
type Service struct {
	// mu serialises matches; the RNG is not safe for concurrent use.
	mu sync.Mutex

	records  repository.Log
	catalog  catalog.Store
	engine   *rating.Engine
	tracker  dedupe.Tracker
	matcher  *matching.Matcher
	strategy matching.Strategy

	playlistID string
	batchSize  int
	dedupeSize int
	seed       uint64
	seeded     bool
	rng        matching.RNG
	clock      func() time.Time
	newID      func() (string, error)

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRecordLog sets the judgment log.
func WithRecordLog(l repository.Log) Option {
	return func(s *Service) {
		s.records = l
	}
}

// WithCatalog sets the item store and candidate source.
func WithCatalog(c catalog.Store) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithPlaylist sets the collection candidates are drawn from.
func WithPlaylist(id string) Option {
	return func(s *Service) {
		s.playlistID = id
	}
}

// WithBatchSize sets how many items a match returns.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDedupeSize sets how many submission keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithSeed makes matching reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Service) {
		s.seed = seed
		s.seeded = true
	}
}

// WithRNG sets the random source directly. It takes precedence over WithSeed.
func WithRNG(rng matching.RNG) Option {
	return func(s *Service) {
		s.rng = rng
	}
}

// WithDefaultStrategy sets the strategy used when a request carries none.
func WithDefaultStrategy(st matching.Strategy) Option {
	return func(s *Service) {
		if st != nil {
			s.strategy = st
		}
	}
}

// WithEngine sets the rating engine.
func WithEngine(e *rating.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator sets how record ids are minted.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		batchSize:  6,
		dedupeSize: dedupe.DefaultMaxSize,
		strategy:   matching.Random{},
		engine:     rating.NewEngine(),
		clock:      time.Now,
		newID:      newRecordID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Start validates collaborators and builds the matcher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.records == nil {
		return ErrMissingLog
	}
	if s.catalog == nil {
		return ErrMissingCatalog
	}
	if s.rng == nil {
		seed := s.seed
		if !s.seeded {
			seed = uint64(s.clock().UnixNano())
		}
		s.rng = matching.NewRNG(seed)
	}
	s.tracker = dedupe.NewTracker(dedupe.WithMaxSize(s.dedupeSize))

	m, err := matching.New(matching.Env{
		Records:    s.records,
		Pool:       s.catalog,
		Items:      s.catalog,
		Collection: s.playlistID,
		RNG:        s.rng,
		Rater:      s.engine,
		Clock:      s.clock,
		Logger:     s.logger.Named("matching"),
	})
	if err != nil {
		return fmt.Errorf("build matcher: %w", err)
	}
	s.matcher = m

	if n, err := s.records.Count(ctx); err == nil {
		metrics.UpdateRecordsTotal(n)
	}
	s.started = true
	if s.playlistID == "" {
		s.logger.Warn(ctx, "no playlist configured; matching will fail until playlist_id is set")
	}
	s.logger.Info(ctx, "vidrank service started",
		logger.String("playlist", s.playlistID),
		logger.Int("batchSize", s.batchSize),
		logger.String("defaultStrategy", s.strategy.Name()),
	)
	return nil
}

// Stop closes the judgment log.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.records.Close(); err != nil {
		s.logger.Error(context.Background(), "close judgment log", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "vidrank service stopped")
}

// Match returns the next batch. A nil strategy uses the configured default.
func (s *Service) Match(ctx context.Context, st matching.Strategy) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchLocked(ctx, st)
}

func (s *Service) matchLocked(ctx context.Context, st matching.Strategy) ([]model.Item, error) {
	if !s.started {
		return nil, ErrNotStarted
	}
	if st == nil {
		st = s.strategy
	}
	return s.matcher.Match(ctx, st, s.batchSize)
}

// SubmitResult is the outcome of Submit and Skip.
type SubmitResult struct {
	RecordID  string
	Duplicate bool
	Items     []model.Item
}

// Submit stores a judged batch and returns the next one. A repeated non-empty
// requestKey returns the original record id without storing again.
func (s *Service) Submit(ctx context.Context, requestKey string, cs model.ChoiceSet, st matching.Strategy) (SubmitResult, error) {
	if err := cs.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidChoices, err)
	}
	if err := matching.Validate(st); err != nil {
		return SubmitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}

	id, err := s.newID()
	if err != nil {
		return SubmitResult{}, fmt.Errorf("generate record id: %w", err)
	}

	res := SubmitResult{RecordID: id}
	if requestKey != "" {
		if prev, seen := s.tracker.Claim(ctx, requestKey, id); seen {
			metrics.RecordDuplicateSubmit()
			s.logger.Debug(ctx, "duplicate submission",
				logger.String("requestKey", requestKey),
				logger.String("recordID", prev),
			)
			res.RecordID = prev
			res.Duplicate = true
		}
	}

	if !res.Duplicate {
		rec := model.Record{ID: id, CreatedAt: s.clock().UnixMilli(), ChoiceSet: cs}
		if err := s.records.Append(ctx, rec); err != nil {
			if requestKey != "" {
				s.tracker.Release(ctx, requestKey)
			}
			return SubmitResult{}, fmt.Errorf("append record: %w", err)
		}
		metrics.RecordAppend()
		if n, err := s.records.Count(ctx); err == nil {
			metrics.UpdateRecordsTotal(n)
		}
		s.logger.Info(ctx, "record stored",
			logger.String("recordID", id),
			logger.Int("choices", len(cs.Choices)),
		)
	}

	items, err := s.matchLocked(ctx, st)
	res.Items = items
	return res, err
}

// Skip stores a batch the user passed on. It behaves exactly like Submit.
func (s *Service) Skip(ctx context.Context, requestKey string, cs model.ChoiceSet, st matching.Strategy) (SubmitResult, error) {
	return s.Submit(ctx, requestKey, cs, st)
}

// Undo removes a record and returns its choices with the items still resolvable.
func (s *Service) Undo(ctx context.Context, recordID string) (model.ChoiceSet, []model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.ChoiceSet{}, nil, ErrNotStarted
	}

	rec, err := s.records.Pop(ctx, recordID)
	if err != nil {
		return model.ChoiceSet{}, nil, err
	}
	metrics.RecordPop()
	if n, err := s.records.Count(ctx); err == nil {
		metrics.UpdateRecordsTotal(n)
	}
	s.logger.Info(ctx, "record undone", logger.String("recordID", recordID))

	return rec.ChoiceSet, s.resolveAll(ctx, rec.ChoiceSet.ItemIDs()), nil
}

func (s *Service) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Rankings returns the global ranking joined with item metadata. Items that
// no longer resolve are left out.
func (s *Service) Rankings(ctx context.Context) ([]types.RankedItem, error) {
	entries, err := s.Ranking(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.RankedItem, 0, len(entries))
	for _, e := range entries {
		item, err := s.catalog.Resolve(ctx, e.ItemID)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.logger.Debug(ctx, "ranked item not found", logger.String("itemID", e.ItemID))
			continue
		}
		out = append(out, types.RankedItem{Item: item, Rank: e.Rank, Rating: e.Rating})
	}
	return out, nil
}

// Ranking returns the bare global ranking.
func (s *Service) Ranking(ctx context.Context) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	records, err := s.records.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	start := time.Now()
	entries := s.engine.Rank(records)
	metrics.RecordRanking(float64(time.Since(start).Microseconds())/1000, len(entries))
	return entries, nil
}

// RecordDetail is a stored record with its choices resolved.
type RecordDetail struct {
	Record model.Record
	Items  map[string]model.Item
}

// Record returns a stored record and the items it mentions.
func (s *Service) Record(ctx context.Context, id string) (RecordDetail, error) {
	if err := s.ready(); err != nil {
		return RecordDetail{}, err
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return RecordDetail{}, err
	}
	detail := RecordDetail{Record: rec, Items: make(map[string]model.Item)}
	for _, item := range s.resolveAll(ctx, rec.ChoiceSet.ItemIDs()) {
		detail.Items[item.ID] = item
	}
	return detail, nil
}

func (s *Service) resolveAll(ctx context.Context, ids []string) []model.Item {
	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.catalog.Resolve(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// ItemActivity counts the actions taken on one item.
type ItemActivity struct {
	ItemID   string  `json:"video_id"`
	Selects  int     `json:"selects"`
	Nothings int     `json:"nothings"`
	Removes  int     `json:"removes"`
	Rating   float64 `json:"rating"`
	Rank     int     `json:"rank"`
}

// Analysis summarises the judgment history.
type Analysis struct {
	Items     []ItemActivity `json:"items"`
	Histogram []Bucket       `json:"histogram"`
}

// Bucket is one bin of the rating histogram, covering [Low, High).
type Bucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

const histogramBins = 10

// Analyze counts actions per item and bins ratings. Items are ordered by
// select count, then by id.
func (s *Service) Analyze(ctx context.Context) (Analysis, error) {
	if err := s.ready(); err != nil {
		return Analysis{}, err
	}
	records, err := s.records.Records(ctx)
	if err != nil {
		return Analysis{}, fmt.Errorf("load records: %w", err)
	}

	byID := make(map[string]*ItemActivity)
	for _, rec := range records {
		for _, c := range rec.ChoiceSet.Choices {
			a, ok := byID[c.ItemID]
			if !ok {
				a = &ItemActivity{ItemID: c.ItemID}
				byID[c.ItemID] = a
			}
			switch c.Action {
			case model.ActionSelect:
				a.Selects++
			case model.ActionNothing:
				a.Nothings++
			case model.ActionRemove:
				a.Removes++
			}
		}
	}
	ranking := s.engine.Rank(records)
	for _, e := range ranking {
		if a, ok := byID[e.ItemID]; ok {
			a.Rating = e.Rating
			a.Rank = e.Rank
		}
	}

	out := Analysis{Items: make([]ItemActivity, 0, len(byID))}
	for _, a := range byID {
		out.Items = append(out.Items, *a)
	}
	sort.Slice(out.Items, func(i, j int) bool {
		if out.Items[i].Selects != out.Items[j].Selects {
			return out.Items[i].Selects > out.Items[j].Selects
		}
		return out.Items[i].ItemID < out.Items[j].ItemID
	})
	out.Histogram = histogram(ranking, histogramBins)
	return out, nil
}

func histogram(ranking []types.Entry, bins int) []Bucket {
	if len(ranking) == 0 {
		return []Bucket{}
	}
	// Ranking is sorted by rating descending.
	hi, lo := ranking[0].Rating, ranking[len(ranking)-1].Rating
	width := (hi - lo) / float64(bins)
	if width == 0 {
		return []Bucket{{Low: lo, High: hi, Count: len(ranking)}}
	}
	out := make([]Bucket, bins)
	for i := range out {
		out[i].Low = lo + float64(i)*width
		out[i].High = lo + float64(i+1)*width
	}
	for _, e := range ranking {
		i := int((e.Rating - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// Stats is a snapshot of the stored history.
type Stats struct {
	Records       int    `json:"records"`
	JudgedItems   int    `json:"judged_items"`
	ExcludedItems int    `json:"excluded_items"`
	PoolSize      int    `json:"pool_size"`
	Playlist      string `json:"playlist"`
	BatchSize     int    `json:"batch_size"`
	Strategy      string `json:"default_strategy"`
	SubmitKeys    int    `json:"submit_keys"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	if err := s.ready(); err != nil {
		return Stats{}, err
	}
	records, err := s.records.Records(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load records: %w", err)
	}

	judged := make(map[string]struct{})
	for _, rec := range records {
		for _, c := range rec.ChoiceSet.Choices {
			if c.Action == model.ActionSelect || c.Action == model.ActionNothing {
				judged[c.ItemID] = struct{}{}
			}
		}
	}
	stats := Stats{
		Records:       len(records),
		JudgedItems:   len(judged),
		ExcludedItems: len(rating.RemovedIDs(records)),
		Playlist:      s.playlistID,
		BatchSize:     s.batchSize,
		Strategy:      s.strategy.Name(),
	}
	if s.tracker != nil {
		stats.SubmitKeys = s.tracker.Size()
	}
	if s.playlistID != "" {
		members, err := s.catalog.Members(ctx, s.playlistID)
		if err != nil && !errors.Is(err, catalog.ErrCollectionNotFound) {
			return stats, fmt.Errorf("load playlist: %w", err)
		}
		stats.PoolSize = len(members)
	}
	metrics.UpdateRecordsTotal(stats.Records)
	return stats, nil
}
