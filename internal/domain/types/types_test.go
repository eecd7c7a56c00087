package types_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churnscore/internal/domain/model"
	types "github.com/okian/churnscore/internal/domain/types"
)

func TestBatch(t *testing.T) {
	Convey("Given a finished batch", t, func() {
		p := 0.42
		b := &types.Batch{
			ID:        "b-1",
			Status:    types.StatusComplete,
			CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			Threshold: 0.7,
			Report: &model.Report{
				Summary: model.Summary{Total: 1, Succeeded: 1},
				Results: []model.ScoreResult{{Row: 0, Probability: &p, Label: model.LabelNo}},
			},
			Input:  []byte("x\n1\n"),
			Output: []byte("x,p\n1,0.42\n"),
		}

		Convey("When encoded as JSON", func() {
			raw, err := json.Marshal(b)
			So(err, ShouldBeNil)

			Convey("Then payload bytes are not included", func() {
				So(string(raw), ShouldContainSubstring, `"batch_id":"b-1"`)
				So(string(raw), ShouldContainSubstring, `"status":"complete"`)
				So(string(raw), ShouldNotContainSubstring, "0.42\\n")
				So(string(raw), ShouldNotContainSubstring, `"finished_at"`)
			})
		})

		Convey("When summarized", func() {
			s := b.Summary()

			Convey("Then rows and payloads are dropped but counts kept", func() {
				So(s.Input, ShouldBeNil)
				So(s.Output, ShouldBeNil)
				So(s.Report.Results, ShouldBeNil)
				So(s.Report.Summary.Total, ShouldEqual, 1)
				So(b.Report.Results, ShouldHaveLength, 1)
				So(b.Output, ShouldNotBeNil)
			})
		})
	})
}

func TestStatusTerminal(t *testing.T) {
	Convey("Only complete and failed are terminal", t, func() {
		So(types.StatusQueued.Terminal(), ShouldBeFalse)
		So(types.StatusRunning.Terminal(), ShouldBeFalse)
		So(types.StatusComplete.Terminal(), ShouldBeTrue)
		So(types.StatusFailed.Terminal(), ShouldBeTrue)
	})
}
