package rating_test

import (
	"testing"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

// rec builds a record from alternating item id / action pairs.
func rec(id string, pairs ...string) model.Record {
	r := model.Record{ID: id}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.ChoiceSet.Choices = append(r.ChoiceSet.Choices, model.Choice{ItemID: pairs[i], Action: model.Action(pairs[i+1])})
	}
	return r
}

func TestExtractEdges(t *testing.T) {
	Convey("Given judgment records", t, func() {
		Convey("When a record selects A, ignores B and removes C", func() {
			edges := rating.ExtractEdges([]model.Record{rec("r1", "A", "select", "B", "nothing", "C", "remove")})

			Convey("Then exactly one edge A over B is produced", func() {
				So(edges, ShouldResemble, []model.Edge{{WinnerID: "A", LoserID: "B"}})
			})
		})

		Convey("When several items are selected", func() {
			edges := rating.ExtractEdges([]model.Record{rec("r1", "A", "nothing", "B", "select", "C", "select", "D", "nothing")})

			Convey("Then every selected item beats every ignored one in choice order", func() {
				So(edges, ShouldResemble, []model.Edge{
					{WinnerID: "B", LoserID: "A"},
					{WinnerID: "B", LoserID: "D"},
					{WinnerID: "C", LoserID: "A"},
					{WinnerID: "C", LoserID: "D"},
				})
			})
		})

		Convey("When a record has only selects or only nothings", func() {
			edges := rating.ExtractEdges([]model.Record{
				rec("r1", "A", "select", "B", "select"),
				rec("r2", "C", "nothing", "D", "nothing"),
			})

			Convey("Then no edge is produced", func() {
				So(edges, ShouldBeEmpty)
			})
		})

		Convey("When a record only removes an item", func() {
			edges := rating.ExtractEdges([]model.Record{rec("r1", "v4", "remove")})

			Convey("Then no edge is produced", func() {
				So(edges, ShouldBeEmpty)
			})
		})

		Convey("When an item id repeats inside one record", func() {
			edges := rating.ExtractEdges([]model.Record{rec("r1", "A", "select", "A", "nothing", "B", "nothing")})

			Convey("Then the first occurrence wins and no self edge appears", func() {
				So(edges, ShouldResemble, []model.Edge{{WinnerID: "A", LoserID: "B"}})
			})
		})

		Convey("When several records are given", func() {
			edges := rating.ExtractEdges([]model.Record{
				rec("r1", "v1", "select", "v2", "nothing"),
				rec("r2", "v1", "select", "v3", "nothing"),
				rec("r3", "v2", "select", "v3", "nothing"),
			})

			Convey("Then edges follow record order", func() {
				So(edges, ShouldResemble, []model.Edge{
					{WinnerID: "v1", LoserID: "v2"},
					{WinnerID: "v1", LoserID: "v3"},
					{WinnerID: "v2", LoserID: "v3"},
				})
			})
		})
	})
}

func TestRemovedIDs(t *testing.T) {
	Convey("Given records with remove actions", t, func() {
		removed := rating.RemovedIDs([]model.Record{
			rec("r1", "A", "select", "B", "remove"),
			rec("r2", "C", "remove"),
			rec("r3", "B", "select", "D", "nothing"),
		})

		Convey("Then every removed id is reported even if later judged", func() {
			So(removed, ShouldHaveLength, 2)
			So(removed, ShouldContainKey, "B")
			So(removed, ShouldContainKey, "C")
		})
	})
}
