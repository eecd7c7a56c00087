package model_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churnscore/internal/domain/model"
)

func TestStateTransitions(t *testing.T) {
	Convey("Given the batch lifecycle", t, func() {
		Convey("Forward transitions follow processing order", func() {
			So(model.StateReceived.CanTransition(model.StateValidating), ShouldBeTrue)
			So(model.StateValidating.CanTransition(model.StateNormalizing), ShouldBeTrue)
			So(model.StateNormalizing.CanTransition(model.StateScoring), ShouldBeTrue)
			So(model.StateScoring.CanTransition(model.StateLabeling), ShouldBeTrue)
			So(model.StateLabeling.CanTransition(model.StateComplete), ShouldBeTrue)
		})

		Convey("Stages cannot be skipped", func() {
			So(model.StateReceived.CanTransition(model.StateScoring), ShouldBeFalse)
			So(model.StateValidating.CanTransition(model.StateComplete), ShouldBeFalse)
		})

		Convey("Terminal states have no successors", func() {
			So(model.StateComplete.Terminal(), ShouldBeTrue)
			So(model.StateFailed.Terminal(), ShouldBeTrue)
			So(model.StateCancelled.Terminal(), ShouldBeTrue)
			So(model.StateComplete.CanTransition(model.StateFailed), ShouldBeFalse)
			So(model.StateScoring.Terminal(), ShouldBeFalse)
		})
	})
}

func TestErrorClasses(t *testing.T) {
	Convey("Typed errors match their sentinel class", t, func() {
		cause := errors.New("bad quote")
		be := model.NewBatchError(model.BatchUnparseable, "cannot parse table", cause)
		So(errors.Is(be, model.ErrBatch), ShouldBeTrue)
		So(errors.Is(be, cause), ShouldBeTrue)
		So(errors.Is(be, model.ErrRow), ShouldBeFalse)
		So(be.Error(), ShouldContainSubstring, "unparseable")

		var target *model.BatchError
		So(errors.As(be, &target), ShouldBeTrue)
		So(target.Kind, ShouldEqual, model.BatchUnparseable)

		re := model.NewRowError(4,
			model.FieldIssue{Column: "tenure", Kind: model.RowWrongType, Message: "not a number"},
			model.FieldIssue{Column: "Contract", Kind: model.RowMissingValue, Message: "required"},
		)
		So(errors.Is(re, model.ErrRow), ShouldBeTrue)
		So(re.Kind, ShouldEqual, model.RowWrongType)
		So(re.Column, ShouldEqual, "tenure")
		So(re.Issues, ShouldHaveLength, 2)
		So(re.Error(), ShouldContainSubstring, "+1 more")

		me := &model.ModelError{Kind: model.ModelVersionMismatch, Message: "want 2, have 1"}
		So(errors.Is(me, model.ErrModel), ShouldBeTrue)
	})
}

func TestReportTally(t *testing.T) {
	Convey("Tally counts every row exactly once", t, func() {
		r := &model.Report{Results: []model.ScoreResult{
			model.Succeeded(0, 0.81, model.LabelYes),
			model.Failed(model.NewRowError(1, model.FieldIssue{Kind: model.RowFieldCount, Message: "short row"})),
			model.Succeeded(2, 0.12, model.LabelNo),
		}}
		r.Tally()
		So(r.Summary, ShouldResemble, model.Summary{Total: 3, Succeeded: 2, Failed: 1})
		So(r.Errors, ShouldHaveLength, 1)
		So(r.Errors[0].Row, ShouldEqual, 1)
		So(r.Results[1].OK(), ShouldBeFalse)
	})
}

func TestRecordValue(t *testing.T) {
	Convey("Record values are trimmed", t, func() {
		rec := model.Record{Values: map[string]string{"tenure": "  12 "}}
		v, ok := rec.Value("tenure")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "12")
		_, ok = rec.Value("missing")
		So(ok, ShouldBeFalse)
	})
}
