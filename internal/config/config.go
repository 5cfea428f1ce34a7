// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/vidrank/internal/adapters/repository"
	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/domain/rating"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr" validate:"required"`

	// AllowedOrigins are the CORS origins of the frontend.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// BatchSize is how many items a match returns.
	BatchSize int `koanf:"batch_size" validate:"min=1,max=100"`

	// RNGSeed makes matching reproducible when non-zero.
	RNGSeed uint64 `koanf:"rng_seed"`

	// PlaylistID names the collection candidates are drawn from.
	PlaylistID string `koanf:"playlist_id"`

	// LogBackend selects where judgment records live.
	LogBackend string `koanf:"log_backend" validate:"oneof=badger file memory"`

	// DataDir holds the judgment log.
	DataDir string `koanf:"data_dir" validate:"required_unless=LogBackend memory"`

	// CatalogPath is the SQLite catalog file.
	CatalogPath string `koanf:"catalog_path" validate:"required"`

	// DefaultStrategy is used when a request carries no settings.
	DefaultStrategy        string  `koanf:"default_strategy" validate:"oneof=random by_rating finetune by_date balanced"`
	BalancedRandomFraction float64 `koanf:"balanced_random_fraction" validate:"gte=0,lte=1"`
	FinetuneFraction       float64 `koanf:"finetune_fraction" validate:"gt=0,lte=1"`
	ByDateDays             int     `koanf:"by_date_days" validate:"min=1"`

	// Catalog circuit breaker.
	BreakerMaxFailures uint32 `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerTimeoutMS   int    `koanf:"breaker_timeout_ms" validate:"min=1"`

	// DedupeSize bounds the remembered submission keys.
	DedupeSize int `koanf:"dedupe_size" validate:"min=0"`

	// Skill model parameters.
	SkillMu    float64 `koanf:"skill_mu"`
	SkillSigma float64 `koanf:"skill_sigma" validate:"gt=0"`
	SkillBeta  float64 `koanf:"skill_beta" validate:"gt=0"`
	SkillTau   float64 `koanf:"skill_tau" validate:"gte=0"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":8000",
		AllowedOrigins:         []string{"http://localhost:3000"},
		BatchSize:              6,
		PlaylistID:             "",
		LogBackend:             string(repository.BackendBadger),
		DataDir:                "data",
		CatalogPath:            "data/catalog.db",
		DefaultStrategy:        matching.NameRandom,
		BalancedRandomFraction: 0.5,
		FinetuneFraction:       0.1,
		ByDateDays:             7,
		BreakerMaxFailures:     5,
		BreakerTimeoutMS:       30_000,
		DedupeSize:             10_000,
		SkillMu:                rating.DefaultMu,
		SkillSigma:             rating.DefaultSigma,
		SkillBeta:              rating.DefaultBeta,
		SkillTau:               rating.DefaultTau,
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Strategy builds the default matching strategy.
func (c *Config) Strategy() (matching.Strategy, error) {
	return matching.FromName(c.DefaultStrategy, matching.Params{
		FinetuneFraction:       c.FinetuneFraction,
		ByDateDays:             c.ByDateDays,
		BalancedRandomFraction: c.BalancedRandomFraction,
	})
}

// BreakerTimeout returns the breaker open interval.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// Engine builds the rating engine from the skill parameters.
func (c *Config) Engine() *rating.Engine {
	return rating.NewEngine(
		rating.WithPrior(c.SkillMu, c.SkillSigma),
		rating.WithBeta(c.SkillBeta),
		rating.WithTau(c.SkillTau),
	)
}
