// Package classifier loads the churn model artifact and computes probabilities
// from encoded feature vectors.
package classifier

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"math"
	"os"

	"github.com/okian/churnscore/internal/domain/model"
)

// SchemaVersion is the artifact layout this package understands.
const SchemaVersion = 1

const defaultAssetPath = "assets/telco_churn.yaml"

//go:embed assets/telco_churn.yaml
var assets embed.FS

// Predictor computes a churn probability for an encoded vector.
type Predictor interface {
	Predict(vec model.FeatureVector) (float64, error)
	Dim() int
	Name() string
	Version() string
	Hash() string
}

// Model is an immutable logistic churn model.
type Model struct {
	artifact Artifact
	weights  []float64
	hash     string
}

var _ Predictor = (*Model)(nil)

// Parse decodes and validates a YAML artifact.
func Parse(data []byte) (*Model, error) {
	a, err := decodeArtifact(data)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)

	m := &Model{artifact: *a, hash: hex.EncodeToString(sum[:])}
	for _, f := range a.Features {
		if f.Kind == KindCategorical {
			m.weights = append(m.weights, f.Weights...)
			continue
		}
		m.weights = append(m.weights, f.Weight)
	}
	return m, nil
}

// LoadFile reads an artifact from disk.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied model path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return m, nil
}

// Default returns the bundled Telco churn model.
func Default() (*Model, error) {
	data, err := assets.ReadFile(defaultAssetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return Parse(data)
}

// Name returns the model name.
func (m *Model) Name() string { return m.artifact.Name }

// Version returns the model version.
func (m *Model) Version() string { return m.artifact.Version }

// Hash returns the hex sha256 of the artifact bytes.
func (m *Model) Hash() string { return m.hash }

// Dim returns the expected vector length.
func (m *Model) Dim() int { return len(m.weights) }

// Features returns a copy of the feature definitions in vector order.
func (m *Model) Features() []Feature {
	return append([]Feature(nil), m.artifact.Features...)
}

// RequiredColumns returns the columns a table must carry, in feature order.
func (m *Model) RequiredColumns() []string {
	cols := make([]string, 0, len(m.artifact.Features))
	for _, f := range m.artifact.Features {
		if !f.Optional {
			cols = append(cols, f.ColumnName())
		}
	}
	return cols
}

// Predict returns the calibrated churn probability in [0, 1].
func (m *Model) Predict(vec model.FeatureVector) (float64, error) {
	if len(vec) != len(m.weights) {
		return 0, fmt.Errorf("%w: length %d, want %d", ErrMalformedVector, len(vec), len(m.weights))
	}
	z := m.artifact.Intercept
	for i, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: slot %d is not finite", ErrMalformedVector, i)
		}
		z += m.weights[i] * x
	}
	if c := m.artifact.Calibration; c != nil {
		z = c.A*z + c.B
	}
	p := sigmoid(z)
	return math.Max(0, math.Min(1, p)), nil
}

// sigmoid avoids overflow for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
