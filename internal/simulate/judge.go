package simulate

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
)

// quality is the hidden merit of a video, stable across runs.
func quality(id string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return float64(h.Sum64()>>11) / (1 << 53)
}

// judge selects the videos that look best under perception noise.
type judge struct {
	rng     *rand.Rand
	selects int
	noise   float64
}

func (j *judge) choose(videos []video) choiceSet {
	type scored struct {
		id    string
		score float64
	}
	seen := make(map[string]struct{}, len(videos))
	list := make([]scored, 0, len(videos))
	for _, v := range videos {
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		list = append(list, scored{id: v.ID, score: quality(v.ID) + j.noise*j.rng.NormFloat64()})
	}
	sort.SliceStable(list, func(a, b int) bool { return list[a].score > list[b].score })

	cs := choiceSet{Choices: make([]choice, len(list))}
	for i, s := range list {
		action := "nothing"
		if i < j.selects {
			action = "select"
		}
		cs.Choices[i] = choice{VideoID: s.id, Action: action}
	}
	return cs
}

// spearman returns the rank correlation between the order of ids and their
// hidden quality. Fewer than two ids give zero.
func spearman(ids []string) float64 {
	n := len(ids)
	if n < 2 {
		return 0
	}
	byQuality := make([]int, n)
	for i := range byQuality {
		byQuality[i] = i
	}
	sort.SliceStable(byQuality, func(a, b int) bool {
		return quality(ids[byQuality[a]]) > quality(ids[byQuality[b]])
	})
	var d2 float64
	for qRank, served := range byQuality {
		d := float64(served - qRank)
		d2 += d * d
	}
	nf := float64(n)
	return 1 - 6*d2/(nf*(math.Pow(nf, 2)-1))
}
