package rating_test

import (
	"testing"

	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildRanking(t *testing.T) {
	Convey("Given no history", t, func() {
		Convey("Then the ranking is empty", func() {
			So(rating.BuildRanking(nil), ShouldBeEmpty)
			So(rating.NewEngine().Rank(nil), ShouldBeEmpty)
			So(rating.NewEngine().Rank([]model.Record{rec("r1", "v4", "remove")}), ShouldBeEmpty)
		})
	})

	Convey("Given a random history", t, func() {
		ranking := rating.NewEngine().Rank(randomHistory(42, 300, 40))

		Convey("Then ranks are dense, 1-based and ratings non-increasing", func() {
			So(len(ranking), ShouldBeGreaterThan, 0)
			for i, e := range ranking {
				So(e.Rank, ShouldEqual, i+1)
				if i > 0 {
					So(ranking[i-1].Rating, ShouldBeGreaterThanOrEqualTo, e.Rating)
				}
			}
		})

		Convey("And every ranked item appears once", func() {
			seen := map[string]bool{}
			for _, e := range ranking {
				So(seen[e.ItemID], ShouldBeFalse)
				seen[e.ItemID] = true
			}
		})
	})

	Convey("Given two items with identical histories", t, func() {
		// a and b never meet and each beat a distinct fresh item once, so
		// their means are equal and discovery order must decide.
		records := []model.Record{
			rec("r1", "a", "select", "x", "nothing"),
			rec("r2", "b", "select", "y", "nothing"),
		}
		ranking := rating.NewEngine().Rank(records)

		Convey("Then ties keep discovery order", func() {
			So(ranking[0].ItemID, ShouldEqual, "a")
			So(ranking[1].ItemID, ShouldEqual, "b")
			So(ranking[0].Rating, ShouldEqual, ranking[1].Rating)
			So(ranking[2].ItemID, ShouldEqual, "x")
			So(ranking[3].ItemID, ShouldEqual, "y")
		})
	})
}
