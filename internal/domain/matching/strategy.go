package matching

import (
	"fmt"
	"math"
)

// Strategy names used on the wire, in configuration and in metrics labels.
const (
	NameRandom   = "random"
	NameByRating = "by_rating"
	NameFinetune = "finetune"
	NameByDate   = "by_date"
	NameBalanced = "balanced"
)

// Strategy selects how the next batch is drawn. The set of strategies is
// closed: only the types in this package implement it.
type Strategy interface {
	Name() string
	strategy()
}

// Random shuffles the non-excluded pool.
type Random struct{}

// ByRating serves items whose rating is closest to a randomly drawn anchor.
type ByRating struct{}

// Finetune serves a random sample of the top Fraction of the ranking.
type Finetune struct {
	Fraction float64
}

// ByDate serves a random sample of items added within the last Days days.
type ByDate struct {
	Days int
}

// Balanced runs Random with probability RandomFraction and ByRating otherwise.
type Balanced struct {
	RandomFraction float64
}

func (Random) Name() string   { return NameRandom }
func (ByRating) Name() string { return NameByRating }
func (Finetune) Name() string { return NameFinetune }
func (ByDate) Name() string   { return NameByDate }
func (Balanced) Name() string { return NameBalanced }

func (Random) strategy()   {}
func (ByRating) strategy() {}
func (Finetune) strategy() {}
func (ByDate) strategy()   {}
func (Balanced) strategy() {}

// Validate checks strategy parameters. Out-of-range values are rejected,
// never clamped.
func Validate(s Strategy) error {
	switch v := s.(type) {
	case nil, Random, ByRating:
		return nil
	case Finetune:
		if math.IsNaN(v.Fraction) || v.Fraction <= 0 || v.Fraction > 1 {
			return fmt.Errorf("%w: finetune fraction %v not in (0, 1]", ErrInvalidSettings, v.Fraction)
		}
		return nil
	case ByDate:
		if v.Days <= 0 {
			return fmt.Errorf("%w: by_date days %d must be positive", ErrInvalidSettings, v.Days)
		}
		return nil
	case Balanced:
		if math.IsNaN(v.RandomFraction) || v.RandomFraction < 0 || v.RandomFraction > 1 {
			return fmt.Errorf("%w: balanced random fraction %v not in [0, 1]", ErrInvalidSettings, v.RandomFraction)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownStrategy, s)
	}
}

// Params carries the numeric parameters used when a strategy is chosen by name.
type Params struct {
	FinetuneFraction       float64
	ByDateDays             int
	BalancedRandomFraction float64
}

// FromName builds a validated strategy from its name. An empty name yields Random.
func FromName(name string, p Params) (Strategy, error) {
	var s Strategy
	switch name {
	case "", NameRandom:
		s = Random{}
	case NameByRating:
		s = ByRating{}
	case NameFinetune:
		s = Finetune{Fraction: p.FinetuneFraction}
	case NameByDate:
		s = ByDate{Days: p.ByDateDays}
	case NameBalanced:
		s = Balanced{RandomFraction: p.BalancedRandomFraction}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}
