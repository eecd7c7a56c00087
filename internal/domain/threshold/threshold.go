// Package threshold turns probabilities into churn labels.
package threshold

import (
	"fmt"
	"math"

	"github.com/okian/churnscore/internal/domain/model"
)

// Default is the cutoff used when a batch does not supply one.
const Default = 0.7

// Validate accepts finite thresholds in (0, 1].
func Validate(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 || t > 1 {
		return model.NewBatchError(model.BatchInvalidThreshold, fmt.Sprintf("threshold %v must be in (0, 1]", t), nil)
	}
	return nil
}

// Label returns Yes when p >= t.
func Label(p, t float64) model.Label {
	if p >= t {
		return model.LabelYes
	}
	return model.LabelNo
}
