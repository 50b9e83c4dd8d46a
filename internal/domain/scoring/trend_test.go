package scoring_test

import (
	"testing"

	"github.com/okian/skillsync/internal/domain/model"
	scoring "github.com/okian/skillsync/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTrend(t *testing.T) {
	Convey("Given chronological score histories", t, func() {
		So(scoring.Trend([]int{40, 40, 40, 80, 80, 80}), ShouldEqual, model.TrendUp)
		So(scoring.Trend([]int{80, 80, 80, 40, 40, 40}), ShouldEqual, model.TrendDown)
		So(scoring.Trend([]int{60, 60, 60, 60, 60, 60}), ShouldEqual, model.TrendStable)

		Convey("When there is fewer than two entries", func() {
			So(scoring.Trend(nil), ShouldEqual, model.TrendStable)
			So(scoring.Trend([]int{90}), ShouldEqual, model.TrendStable)
		})

		Convey("When the older window is empty", func() {
			So(scoring.Trend([]int{10, 90}), ShouldEqual, model.TrendStable)
			So(scoring.Trend([]int{10, 50, 90}), ShouldEqual, model.TrendStable)
		})

		Convey("When the older window is partial", func() {
			// older=[40], recent=[60,60,60]
			So(scoring.Trend([]int{40, 60, 60, 60}), ShouldEqual, model.TrendUp)
		})

		Convey("When the difference sits on the threshold", func() {
			So(scoring.Trend([]int{50, 50, 50, 55, 55, 55}), ShouldEqual, model.TrendStable)
			So(scoring.Trend([]int{50, 50, 50, 56, 56, 56}), ShouldEqual, model.TrendUp)
		})

		Convey("When more than seven entries are passed only the newest seven count", func() {
			// newest 7: [90, 40,40,40, 80,80,80] -> older=[40,40,40]
			So(scoring.Trend([]int{0, 0, 0, 90, 40, 40, 40, 80, 80, 80}), ShouldEqual, model.TrendUp)
		})
	})
}
