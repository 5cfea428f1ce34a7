package rating

import "github.com/okian/vidrank/internal/domain/model"

// ExtractEdges derives winner/loser comparisons from records.
//
// Within a record every selected item beats every item with no action.
// Removed items never take part. Choices repeating an item id collapse onto
// the first occurrence. Output follows record order, then choice order.
func ExtractEdges(records []model.Record) []model.Edge {
	var edges []model.Edge
	for _, rec := range records {
		choices := uniqueChoices(rec.ChoiceSet.Choices)
		for _, a := range choices {
			if a.Action != model.ActionSelect {
				continue
			}
			for _, b := range choices {
				if b.Action == model.ActionNothing {
					edges = append(edges, model.Edge{WinnerID: a.ItemID, LoserID: b.ItemID})
				}
			}
		}
	}
	return edges
}

func uniqueChoices(choices []model.Choice) []model.Choice {
	seen := make(map[string]struct{}, len(choices))
	out := make([]model.Choice, 0, len(choices))
	for _, c := range choices {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// RemovedIDs returns every item id that was ever marked remove.
func RemovedIDs(records []model.Record) map[string]struct{} {
	removed := make(map[string]struct{})
	for _, rec := range records {
		for _, c := range rec.ChoiceSet.Choices {
			if c.Action == model.ActionRemove {
				removed[c.ItemID] = struct{}{}
			}
		}
	}
	return removed
}
