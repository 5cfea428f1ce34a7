package catalog

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/pkg/logger"
	"github.com/okian/vidrank/pkg/metrics"
)

// Store is what the breaker protects: item resolution and membership.
type Store interface {
	Resolve(ctx context.Context, id string) (model.Item, error)
	Members(ctx context.Context, collection string) ([]model.Member, error)
}

// BreakerStore guards a Store with a circuit breaker. Missing items and
// cancelled requests do not count as failures.
type BreakerStore struct {
	next    Store
	items   *gobreaker.CircuitBreaker[model.Item]
	members *gobreaker.CircuitBreaker[[]model.Member]
}

type breakerOptions struct {
	maxFailures uint32
	timeout     time.Duration
	log         logger.Logger
}

// BreakerOption configures a BreakerStore.
type BreakerOption func(*breakerOptions)

// WithMaxFailures sets how many consecutive failures open the circuit.
func WithMaxFailures(n uint32) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.maxFailures = n
		}
	}
}

// WithTimeout sets how long the circuit stays open before probing again.
func WithTimeout(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreakerLogger logs state transitions to l.
func WithBreakerLogger(l logger.Logger) BreakerOption {
	return func(o *breakerOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, opts ...BreakerOption) *BreakerStore {
	o := breakerOptions{maxFailures: 5, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &BreakerStore{
		next:    next,
		items:   gobreaker.NewCircuitBreaker[model.Item](o.settings("catalog-items")),
		members: gobreaker.NewCircuitBreaker[[]model.Member](o.settings("catalog-members")),
	}
}

func (o breakerOptions) settings(name string) gobreaker.Settings {
	metrics.UpdateBreakerState(name, stateValue(gobreaker.StateClosed))
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     o.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrItemNotFound) ||
				errors.Is(err, ErrCollectionNotFound) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, stateValue(to))
			if o.log != nil {
				o.log.Warn(context.Background(), "circuit breaker state change",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}
		},
	}
}

// Resolve implements Store.
func (b *BreakerStore) Resolve(ctx context.Context, id string) (model.Item, error) {
	return b.items.Execute(func() (model.Item, error) {
		return b.next.Resolve(ctx, id)
	})
}

// Members implements Store.
func (b *BreakerStore) Members(ctx context.Context, collection string) ([]model.Member, error) {
	return b.members.Execute(func() ([]model.Member, error) {
		return b.next.Members(ctx, collection)
	})
}

// State reports the item breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.items.State()
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
