package matching_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	"github.com/okian/vidrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRecords []model.Record

func (f fakeRecords) Records(context.Context) ([]model.Record, error) { return f, nil }

type failingRecords struct{}

func (failingRecords) Records(context.Context) ([]model.Record, error) {
	return nil, errors.New("disk on fire")
}

type fakePool []model.Member

func (f fakePool) Members(context.Context, string) ([]model.Member, error) { return f, nil }

// fakeItems resolves every id except the ones listed as missing.
type fakeItems struct {
	missing map[string]bool
	calls   int
	cancel  context.CancelFunc
}

func (f *fakeItems) Resolve(_ context.Context, id string) (model.Item, error) {
	f.calls++
	if f.cancel != nil && f.calls == 2 {
		f.cancel()
	}
	if f.missing[id] {
		return model.Item{}, model.ErrItemNotFound
	}
	return model.Item{ID: id, Title: "title " + id}, nil
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// pool builds members v0..v(n-1), member i added i days before now.
func pool(n int) fakePool {
	out := make(fakePool, n)
	for i := range out {
		out[i] = model.Member{ItemID: fmt.Sprintf("v%d", i), AddedAt: now.Add(-time.Duration(i) * 24 * time.Hour)}
	}
	return out
}

func rec(pairs ...string) model.Record {
	var r model.Record
	for i := 0; i+1 < len(pairs); i += 2 {
		r.ChoiceSet.Choices = append(r.ChoiceSet.Choices, model.Choice{ItemID: pairs[i], Action: model.Action(pairs[i+1])})
	}
	return r
}

// chain builds a history where v0 beats v1, v1 beats v2, and so on up to v(n-1).
func chain(n int) fakeRecords {
	var out fakeRecords
	for i := 0; i+1 < n; i++ {
		out = append(out, rec(fmt.Sprintf("v%d", i), "select", fmt.Sprintf("v%d", i+1), "nothing"))
	}
	return out
}

// topIDs returns the k best-rated ids of a history.
func topIDs(records []model.Record, k int) []string {
	var out []string
	for _, e := range rating.NewEngine().Rank(records)[:k] {
		out = append(out, e.ItemID)
	}
	return out
}

type harness struct {
	records matching.RecordSource
	pool    fakePool
	items   *fakeItems
	log     *bytes.Buffer
}

func newHarness(records matching.RecordSource, p fakePool) *harness {
	return &harness{records: records, pool: p, items: &fakeItems{}, log: &bytes.Buffer{}}
}

func (h *harness) matcher(rng matching.RNG) *matching.Matcher {
	m, err := matching.New(matching.Env{
		Records:    h.records,
		Pool:       h.pool,
		Items:      h.items,
		Collection: "PL1",
		RNG:        rng,
		Clock:      func() time.Time { return now },
		Logger:     logger.New(logger.WithOutput(h.log), logger.WithFormat(logger.FormatJSON)),
	})
	So(err, ShouldBeNil)
	return m
}

func (h *harness) match(seed uint64, s matching.Strategy, n int) []string {
	items, err := h.matcher(matching.NewRNG(seed)).Match(context.Background(), s, n)
	So(err, ShouldBeNil)
	return ids(items)
}

func TestMatcher_Arguments(t *testing.T) {
	Convey("Given a matcher", t, func() {
		h := newHarness(fakeRecords{}, pool(5))
		m := h.matcher(matching.NewRNG(1))
		ctx := context.Background()

		Convey("When the environment lacks collaborators", func() {
			_, err := matching.New(matching.Env{Records: fakeRecords{}})
			So(errors.Is(err, matching.ErrIncompleteEnv), ShouldBeTrue)
		})

		Convey("When the batch size is not positive", func() {
			_, err := m.Match(ctx, matching.Random{}, 0)
			So(errors.Is(err, matching.ErrInvalidBatchSize), ShouldBeTrue)
			_, err = m.Match(ctx, matching.Random{}, -3)
			So(errors.Is(err, matching.ErrInvalidBatchSize), ShouldBeTrue)
		})

		Convey("When strategy parameters are out of range", func() {
			for _, s := range []matching.Strategy{
				matching.Finetune{Fraction: 0},
				matching.Finetune{Fraction: 1.5},
				matching.Finetune{Fraction: math.NaN()},
				matching.ByDate{Days: 0},
				matching.Balanced{RandomFraction: -0.1},
				matching.Balanced{RandomFraction: 1.1},
			} {
				_, err := m.Match(ctx, s, 3)
				So(errors.Is(err, matching.ErrInvalidSettings), ShouldBeTrue)
			}
		})

		Convey("When the judgment log fails", func() {
			broken := newHarness(failingRecords{}, pool(5))
			_, err := broken.matcher(matching.NewRNG(1)).Match(ctx, matching.Random{}, 3)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "disk on fire")
		})
	})
}

func TestMatcher_Random(t *testing.T) {
	Convey("Given a pool of ten items", t, func() {
		h := newHarness(fakeRecords{}, pool(10))

		Convey("When matching six at random", func() {
			got := h.match(3, matching.Random{}, 6)

			Convey("Then six distinct pool items are returned", func() {
				So(got, ShouldHaveLength, 6)
				seen := map[string]bool{}
				for _, id := range got {
					So(seen[id], ShouldBeFalse)
					seen[id] = true
				}
			})

			Convey("And the same seed gives the same batch", func() {
				So(h.match(3, matching.Random{}, 6), ShouldResemble, got)
			})

			Convey("And nil settings behave like Random", func() {
				So(h.match(3, nil, 6), ShouldResemble, got)
			})
		})

		Convey("When more items are requested than exist", func() {
			So(h.match(1, matching.Random{}, 50), ShouldHaveLength, 10)
		})

		Convey("When some items cannot be resolved", func() {
			h.items.missing = map[string]bool{"v1": true, "v4": true, "v7": true}
			got := h.match(5, matching.Random{}, 10)

			Convey("Then they are skipped and do not count", func() {
				So(got, ShouldHaveLength, 7)
				So(got, ShouldNotContain, "v1")
				So(got, ShouldNotContain, "v4")
				So(got, ShouldNotContain, "v7")
			})
		})

		Convey("When some resolve and others fail before n is reached", func() {
			h.items.missing = map[string]bool{"v0": true}
			got := h.match(9, matching.Random{}, 9)

			Convey("Then iteration continues past the failure", func() {
				So(got, ShouldHaveLength, 9)
			})
		})
	})
}

func TestMatcher_Exclusion(t *testing.T) {
	Convey("Given a history where v4 is marked remove", t, func() {
		records := append(chain(8), rec("v4", "remove"))
		h := newHarness(records, pool(8))

		strategies := []matching.Strategy{
			matching.Random{},
			matching.ByRating{},
			matching.Finetune{Fraction: 1},
			matching.ByDate{Days: 30},
			matching.Balanced{RandomFraction: 0.5},
		}

		Convey("Then no strategy ever serves v4, for any seed", func() {
			for _, s := range strategies {
				for seed := uint64(0); seed < 50; seed++ {
					So(h.match(seed, s, 6), ShouldNotContain, "v4")
				}
			}
		})

		Convey("And a remove-only record keeps an unjudged item out", func() {
			h.records = fakeRecords{rec("v4", "remove")}
			for _, s := range []matching.Strategy{matching.Random{}, matching.ByRating{}, matching.ByDate{Days: 30}} {
				for seed := uint64(0); seed < 20; seed++ {
					got := h.match(seed, s, 7)
					So(got, ShouldHaveLength, 7)
					So(got, ShouldNotContain, "v4")
				}
			}
		})

		Convey("And an item removed after being judged is excluded as well", func() {
			h.records = append(chain(8), rec("v0", "remove", "v1", "nothing"))
			for seed := uint64(0); seed < 20; seed++ {
				So(h.match(seed, matching.ByRating{}, 5), ShouldNotContain, "v0")
			}
		})
	})
}

func TestMatcher_ByRating(t *testing.T) {
	Convey("Given a fully ranked pool", t, func() {
		records := chain(10)
		h := newHarness(records, pool(10))
		ratings := map[string]float64{}
		for _, e := range rating.NewEngine().Rank(records) {
			ratings[e.ItemID] = e.Rating
		}

		Convey("When matching by rating", func() {
			Convey("Then items come nearest the anchor first", func() {
				for seed := uint64(0); seed < 20; seed++ {
					got := h.match(seed, matching.ByRating{}, 4)
					So(got, ShouldHaveLength, 4)
					anchor := ratings[got[0]]
					for i := 1; i < len(got); i++ {
						prev := math.Abs(ratings[got[i-1]] - anchor)
						So(math.Abs(ratings[got[i]]-anchor), ShouldBeGreaterThanOrEqualTo, prev)
					}
				}
			})
		})

		Convey("And no fallback is logged", func() {
			h.match(1, matching.ByRating{}, 4)
			So(h.log.String(), ShouldNotContainSubstring, "falling back")
		})
	})

	Convey("Given only three judged items and n = 5", t, func() {
		h := newHarness(fakeRecords{rec("v0", "select", "v1", "nothing", "v2", "nothing")}, pool(10))

		Convey("Then ByRating returns exactly what Random returns for the same seed", func() {
			for seed := uint64(0); seed < 20; seed++ {
				So(h.match(seed, matching.ByRating{}, 5), ShouldResemble, h.match(seed, matching.Random{}, 5))
			}
		})

		Convey("And the fallback is logged as a warning", func() {
			h.match(1, matching.ByRating{}, 5)
			So(h.log.String(), ShouldContainSubstring, "falling back to random")
			So(h.log.String(), ShouldContainSubstring, `"level":"WARN"`)
			So(h.log.String(), ShouldContainSubstring, `"strategy":"by_rating"`)
		})
	})

	Convey("Given an empty history", t, func() {
		h := newHarness(fakeRecords{}, pool(6))

		Convey("Then ByRating still serves a Random batch", func() {
			So(h.match(2, matching.ByRating{}, 6), ShouldHaveLength, 6)
		})
	})

	Convey("Given ranked items that left the pool", t, func() {
		// v0..v9 are ranked but only v5..v9 are still members.
		h := newHarness(chain(10), pool(10)[5:])

		Convey("Then only current members are served", func() {
			for seed := uint64(0); seed < 10; seed++ {
				got := h.match(seed, matching.ByRating{}, 5)
				for _, id := range got {
					So(id, ShouldBeIn, []string{"v5", "v6", "v7", "v8", "v9"})
				}
			}
		})
	})
}

func TestMatcher_DefaultLogger(t *testing.T) {
	Convey("Given an env without a logger", t, func() {
		m, err := matching.New(matching.Env{
			Records:    fakeRecords{},
			Pool:       pool(3),
			Items:      &fakeItems{},
			Collection: "PL1",
			RNG:        matching.NewRNG(1),
			Clock:      func() time.Time { return now },
		})
		So(err, ShouldBeNil)

		Convey("When a strategy falls back and logs", func() {
			Convey("Then matching still succeeds", func() {
				var items []model.Item
				So(func() {
					items, err = m.Match(context.Background(), matching.ByRating{}, 2)
				}, ShouldNotPanic)
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 2)
			})
		})
	})
}

func TestMatcher_Finetune(t *testing.T) {
	Convey("Given ten ranked items", t, func() {
		records := chain(10)
		h := newHarness(records, pool(10))

		Convey("When the top half is fine-tuned", func() {
			Convey("Then only the five best items are served", func() {
				for seed := uint64(0); seed < 20; seed++ {
					got := h.match(seed, matching.Finetune{Fraction: 0.5}, 3)
					So(got, ShouldHaveLength, 3)
					for _, id := range got {
						So(id, ShouldBeIn, topIDs(records, 5))
					}
				}
			})
		})

		Convey("When the fraction rounds up", func() {
			Convey("Then ceil of the fraction is eligible", func() {
				got := h.match(4, matching.Finetune{Fraction: 0.21}, 3)
				for _, id := range got {
					So(id, ShouldBeIn, topIDs(records, 3))
				}
			})
		})

		Convey("When the subset is smaller than the batch", func() {
			Convey("Then Random is served instead", func() {
				for seed := uint64(0); seed < 10; seed++ {
					So(h.match(seed, matching.Finetune{Fraction: 0.1}, 3), ShouldResemble, h.match(seed, matching.Random{}, 3))
				}
				So(h.log.String(), ShouldContainSubstring, `"strategy":"finetune"`)
			})
		})
	})

	Convey("Given a hundred ranked items", t, func() {
		records := chain(100)
		h := newHarness(records, pool(100))

		Convey("When the fraction times the pool lands just above an integer", func() {
			Convey("Then the window is not rounded past it", func() {
				for seed := uint64(0); seed < 10; seed++ {
					got := h.match(seed, matching.Finetune{Fraction: 0.07}, 7)
					So(got, ShouldHaveLength, 7)
					for _, id := range got {
						So(id, ShouldBeIn, topIDs(records, 7))
					}
				}
				So(h.log.String(), ShouldNotContainSubstring, "falling back")
			})

			Convey("And a batch larger than the window falls back to Random", func() {
				So(h.match(3, matching.Finetune{Fraction: 0.07}, 8), ShouldResemble, h.match(3, matching.Random{}, 8))
				So(h.log.String(), ShouldContainSubstring, "falling back")
			})
		})
	})
}

func TestMatcher_ByDate(t *testing.T) {
	Convey("Given members added one per day", t, func() {
		h := newHarness(fakeRecords{}, pool(20))

		Convey("When asking for the last week", func() {
			Convey("Then only items added within seven days are served", func() {
				for seed := uint64(0); seed < 20; seed++ {
					got := h.match(seed, matching.ByDate{Days: 7}, 4)
					So(got, ShouldHaveLength, 4)
					for _, id := range got {
						So(id, ShouldBeIn, []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"})
					}
				}
			})
		})

		Convey("When too few items are recent", func() {
			Convey("Then Random is served instead", func() {
				for seed := uint64(0); seed < 10; seed++ {
					So(h.match(seed, matching.ByDate{Days: 1}, 5), ShouldResemble, h.match(seed, matching.Random{}, 5))
				}
				So(h.log.String(), ShouldContainSubstring, `"strategy":"by_date"`)
			})
		})

		Convey("When recent items were removed", func() {
			h.records = fakeRecords{rec("v0", "remove"), rec("v1", "remove")}

			Convey("Then they are excluded before counting", func() {
				got := h.match(1, matching.ByDate{Days: 3}, 2)
				So(got, ShouldHaveLength, 2)
				for _, id := range got {
					So(id, ShouldBeIn, []string{"v2", "v3"})
				}
			})
		})
	})
}

func TestMatcher_Balanced(t *testing.T) {
	Convey("Given a fully ranked pool", t, func() {
		h := newHarness(chain(10), pool(10))
		ctx := context.Background()

		Convey("When random fraction is zero", func() {
			Convey("Then ByRating is always used", func() {
				for seed := uint64(0); seed < 30; seed++ {
					got := h.match(seed, matching.Balanced{RandomFraction: 0}, 4)

					rng := matching.NewRNG(seed)
					rng.Float64()
					want, err := h.matcher(rng).Match(ctx, matching.ByRating{}, 4)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, ids(want))
				}
			})
		})

		Convey("When random fraction is one", func() {
			Convey("Then Random is always used", func() {
				for seed := uint64(0); seed < 30; seed++ {
					got := h.match(seed, matching.Balanced{RandomFraction: 1}, 4)

					rng := matching.NewRNG(seed)
					rng.Float64()
					want, err := h.matcher(rng).Match(ctx, matching.Random{}, 4)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, ids(want))
				}
			})
		})
	})
}

func TestMatcher_Cancellation(t *testing.T) {
	Convey("Given a context cancelled during resolution", t, func() {
		h := newHarness(fakeRecords{}, pool(10))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.items.cancel = cancel

		items, err := h.matcher(matching.NewRNG(1)).Match(ctx, matching.Random{}, 6)

		Convey("Then the partial batch is returned with the context error", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(items, ShouldHaveLength, 2)
		})
	})
}
