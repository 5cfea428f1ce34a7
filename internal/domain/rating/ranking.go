package rating

import (
	"sort"

	"github.com/okian/vidrank/internal/domain/types"
)

// BuildRanking sorts rated items by mean skill, highest first. Ties keep
// discovery order. Ranks are dense and start at 1.
func BuildRanking(beliefs *Beliefs) []types.Entry {
	if beliefs == nil || beliefs.Len() == 0 {
		return []types.Entry{}
	}
	entries := make([]types.Entry, 0, beliefs.Len())
	for _, id := range beliefs.order {
		entries = append(entries, types.Entry{ItemID: id, Rating: beliefs.byID[id].Mu})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Rating > entries[j].Rating
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
