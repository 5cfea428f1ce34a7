package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/okian/vidrank/pkg/logger"
)

// Defaults for zero Config fields.
const (
	DefaultRounds  = 50
	DefaultSelects = 1
	DefaultNoise   = 0.1
	DefaultTimeout = 10 * time.Second
)

// ErrNoVideos is returned when the server serves batches too small to judge.
var ErrNoVideos = errors.New("server returned fewer than two videos")

// Option configures Run.
type Option func(*runner)

// WithLogger sets the progress logger.
func WithLogger(l logger.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. for httptest servers.
func WithHTTPClient(c *http.Client) Option {
	return func(r *runner) {
		if c != nil {
			r.client.client = c
		}
	}
}

type runner struct {
	cfg    Config
	client *HTTPClient
	judge  *judge
	log    logger.Logger
}

// Run executes the complete simulation.
func Run(ctx context.Context, cfg Config, opts ...Option) (Report, error) {
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultRounds
	}
	if cfg.Selects <= 0 {
		cfg.Selects = DefaultSelects
	}
	if cfg.Noise < 0 {
		cfg.Noise = DefaultNoise
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	r := &runner{
		cfg:    cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.Timeout),
		judge: &judge{
			rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
			selects: cfg.Selects,
			noise:   cfg.Noise,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Named("simulate")
	}
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (Report, error) {
	report := Report{}
	start := time.Now()

	r.log.Info(ctx, "starting vidrank simulation",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("rounds", r.cfg.Rounds),
		logger.Int("selects", r.cfg.Selects),
		logger.Float64("noise", r.cfg.Noise),
	)

	if err := r.checkServiceHealth(ctx); err != nil {
		return report, fmt.Errorf("service health check failed: %w", err)
	}

	var batch videosResponse
	if err := r.client.post(ctx, "/videos", videosRequest{Settings: r.settings()}, &batch, nil); err != nil {
		return report, fmt.Errorf("fetch first batch: %w", err)
	}
	videos := batch.Videos

	for round := 0; round < r.cfg.Rounds; round++ {
		if len(videos) < 2 {
			return report, ErrNoVideos
		}
		req := submitRequest{ChoiceSet: r.judge.choose(videos), Settings: r.settings()}
		key := fmt.Sprintf("sim-%d-%d", r.cfg.Seed, round)

		var res submitResponse
		if err := r.client.post(ctx, "/submit", req, &res, map[string]string{"Idempotency-Key": key}); err != nil {
			return report, fmt.Errorf("round %d: %w", round, err)
		}
		report.Rounds++
		if res.Duplicate {
			report.Duplicates++
		} else {
			report.Records++
		}
		r.log.Debug(ctx, "round judged",
			logger.Int("round", round),
			logger.String("recordID", res.RecordID),
			logger.Bool("duplicate", res.Duplicate),
		)
		videos = res.Videos
	}

	var ranked rankingsResponse
	if err := r.client.get(ctx, "/rankings", &ranked); err != nil {
		return report, fmt.Errorf("fetch rankings: %w", err)
	}
	ids := make([]string, len(ranked.Rankings))
	for i, e := range ranked.Rankings {
		ids[i] = e.Video.ID
	}
	report.Ranked = len(ids)
	report.Spearman = spearman(ids)
	report.Duration = time.Since(start)

	r.log.Info(ctx, "simulation finished",
		logger.Int("rounds", report.Rounds),
		logger.Int("records", report.Records),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("ranked", report.Ranked),
		logger.Float64("spearman", report.Spearman),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *runner) settings() settings {
	return settings{MatchingSettings: r.cfg.Settings}
}

// checkServiceHealth verifies the service is running.
func (r *runner) checkServiceHealth(ctx context.Context) error {
	var status statusResponse
	if err := r.client.get(ctx, "/", &status); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status.Status != "healthy" {
		return fmt.Errorf("service reports %q", status.Status)
	}
	return nil
}
