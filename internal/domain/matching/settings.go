package matching

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

type emptyWire struct{}

type finetuneWire struct {
	Fraction *float64 `json:"fraction"`
}

type byDateWire struct {
	Days *int `json:"days"`
}

type balancedWire struct {
	RandomFraction *float64 `json:"random_fraction"`
}

// settingsWire accepts both the flat server-side shape
// {matching_strategy, balanced_random_fraction} and the tagged client-side
// shape where exactly one *_strategy key is non-null.
type settingsWire struct {
	MatchingStrategy       *string  `json:"matching_strategy,omitempty"`
	BalancedRandomFraction *float64 `json:"balanced_random_fraction,omitempty"`

	Random   *emptyWire    `json:"random_strategy,omitempty"`
	ByRating *emptyWire    `json:"by_rating_strategy,omitempty"`
	Finetune *finetuneWire `json:"finetune_strategy,omitempty"`
	ByDate   *byDateWire   `json:"by_date_strategy,omitempty"`
	Balanced *balancedWire `json:"balanced_strategy,omitempty"`
}

var knownSettingsKeys = map[string]struct{}{
	"matching_strategy":        {},
	"balanced_random_fraction": {},
	"random_strategy":          {},
	"by_rating_strategy":       {},
	"finetune_strategy":        {},
	"by_date_strategy":         {},
	"balanced_strategy":        {},
}

// DecodeSettings parses matching settings from JSON. Empty input, null and
// an object with no strategy all yield Random.
func DecodeSettings(raw []byte) (Strategy, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Random{}, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	for k := range keys {
		if _, ok := knownSettingsKeys[k]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, k)
		}
	}

	var w settingsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	s, err := w.strategy()
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (w settingsWire) strategy() (Strategy, error) {
	var tagged []Strategy
	if w.Random != nil {
		tagged = append(tagged, Random{})
	}
	if w.ByRating != nil {
		tagged = append(tagged, ByRating{})
	}
	if w.Finetune != nil {
		if w.Finetune.Fraction == nil {
			return nil, fmt.Errorf("%w: finetune_strategy requires fraction", ErrInvalidSettings)
		}
		tagged = append(tagged, Finetune{Fraction: *w.Finetune.Fraction})
	}
	if w.ByDate != nil {
		if w.ByDate.Days == nil {
			return nil, fmt.Errorf("%w: by_date_strategy requires days", ErrInvalidSettings)
		}
		tagged = append(tagged, ByDate{Days: *w.ByDate.Days})
	}
	if w.Balanced != nil {
		if w.Balanced.RandomFraction == nil {
			return nil, fmt.Errorf("%w: balanced_strategy requires random_fraction", ErrInvalidSettings)
		}
		tagged = append(tagged, Balanced{RandomFraction: *w.Balanced.RandomFraction})
	}

	flat := w.MatchingStrategy != nil || w.BalancedRandomFraction != nil
	switch {
	case len(tagged) > 1:
		return nil, fmt.Errorf("%w: %d strategies set, want exactly one", ErrInvalidSettings, len(tagged))
	case len(tagged) == 1 && flat:
		return nil, fmt.Errorf("%w: tagged and flat strategy fields are mutually exclusive", ErrInvalidSettings)
	case len(tagged) == 1:
		return tagged[0], nil
	case !flat:
		return Random{}, nil
	}

	name := NameBalanced
	if w.MatchingStrategy != nil {
		name = *w.MatchingStrategy
	}
	switch name {
	case NameRandom:
		return Random{}, nil
	case NameByRating:
		return ByRating{}, nil
	case NameBalanced:
		if w.BalancedRandomFraction == nil {
			return nil, fmt.Errorf("%w: balanced requires balanced_random_fraction", ErrInvalidSettings)
		}
		return Balanced{RandomFraction: *w.BalancedRandomFraction}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// EncodeSettings renders s in the tagged shape with a single non-null key.
func EncodeSettings(s Strategy) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	var w settingsWire
	switch v := s.(type) {
	case nil, Random:
		w.Random = &emptyWire{}
	case ByRating:
		w.ByRating = &emptyWire{}
	case Finetune:
		w.Finetune = &finetuneWire{Fraction: &v.Fraction}
	case ByDate:
		w.ByDate = &byDateWire{Days: &v.Days}
	case Balanced:
		w.Balanced = &balancedWire{RandomFraction: &v.RandomFraction}
	}
	return json.Marshal(w)
}
