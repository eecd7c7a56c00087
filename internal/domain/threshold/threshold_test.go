package threshold_test

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/threshold"
)

func TestLabel(t *testing.T) {
	Convey("Given a cutoff", t, func() {
		So(threshold.Label(0.7, 0.7), ShouldEqual, model.LabelYes)
		So(threshold.Label(math.Nextafter(0.7, 0), 0.7), ShouldEqual, model.LabelNo)
		So(threshold.Label(1, 1), ShouldEqual, model.LabelYes)
		So(threshold.Label(0, 0.01), ShouldEqual, model.LabelNo)
	})
}

func TestValidate(t *testing.T) {
	Convey("Thresholds must lie in (0, 1]", t, func() {
		So(threshold.Validate(threshold.Default), ShouldBeNil)
		So(threshold.Validate(1), ShouldBeNil)
		So(threshold.Validate(0.0001), ShouldBeNil)

		for _, bad := range []float64{0, -0.1, 1.0001, math.NaN(), math.Inf(1)} {
			err := threshold.Validate(bad)
			So(errors.Is(err, model.ErrBatch), ShouldBeTrue)
			var be *model.BatchError
			So(errors.As(err, &be), ShouldBeTrue)
			So(be.Kind, ShouldEqual, model.BatchInvalidThreshold)
		}
	})
}
