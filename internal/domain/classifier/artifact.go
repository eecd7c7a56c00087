package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature kinds.
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
)

// Missing-value policies.
const (
	MissingReject = "reject"
	MissingImpute = "impute"
)

// Scaling methods for numeric features.
const (
	ScaleNone   = "none"
	ScaleZScore = "zscore"
	ScaleMinMax = "minmax"
)

// CalibrationPlatt maps a raw logit z to σ(a·z + b).
const CalibrationPlatt = "platt"

// Artifact is the on-disk model description.
type Artifact struct {
	Name          string       `yaml:"name"`
	Version       string       `yaml:"version"`
	SchemaVersion int          `yaml:"schema_version"`
	Intercept     float64      `yaml:"intercept"`
	Features      []Feature    `yaml:"features"`
	Calibration   *Calibration `yaml:"calibration,omitempty"`
}

// Feature describes one input column and how it is encoded.
type Feature struct {
	Name       string    `yaml:"name"`
	Column     string    `yaml:"column"`
	Kind       string    `yaml:"kind"`
	Missing    Missing   `yaml:"missing"`
	Valid      *Range    `yaml:"valid,omitempty"`
	Scaling    Scaling   `yaml:"scaling"`
	Weight     float64   `yaml:"weight"`
	Categories []string  `yaml:"categories,omitempty"`
	Weights    []float64 `yaml:"weights,omitempty"`
	Strict     bool      `yaml:"strict"`
	Optional   bool      `yaml:"optional"`
}

// Missing configures the missing-value policy of a feature.
type Missing struct {
	Policy  string `yaml:"policy"`
	Default string `yaml:"default"`
}

// Range bounds a numeric feature. Nil ends are open.
type Range struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// Contains reports whether v is within the range.
func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Scaling configures numeric feature scaling.
type Scaling struct {
	Method string  `yaml:"method"`
	Mean   float64 `yaml:"mean"`
	Std    float64 `yaml:"std"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Calibration configures probability calibration.
type Calibration struct {
	Method string  `yaml:"method"`
	A      float64 `yaml:"a"`
	B      float64 `yaml:"b"`
}

// Width returns the number of vector slots the feature occupies.
func (f Feature) Width() int {
	if f.Kind == KindCategorical {
		return len(f.Categories) + 1
	}
	return 1
}

// ColumnName returns the source column, defaulting to Name.
func (f Feature) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// CategoryIndex returns the slot of v among the declared categories, matched
// case-insensitively after trimming, or -1 for the other bucket.
func (f Feature) CategoryIndex(v string) int {
	v = strings.TrimSpace(v)
	for i, c := range f.Categories {
		if strings.EqualFold(c, v) {
			return i
		}
	}
	return -1
}

// Scale applies the feature's frozen scaling to x.
func (f Feature) Scale(x float64) float64 {
	switch f.Scaling.Method {
	case ScaleZScore:
		return (x - f.Scaling.Mean) / f.Scaling.Std
	case ScaleMinMax:
		return (x - f.Scaling.Min) / (f.Scaling.Max - f.Scaling.Min)
	default:
		return x
	}
}

func decodeArtifact(data []byte) (*Artifact, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.Name == "" || a.Version == "" {
		return fmt.Errorf("%w: name and version are required", ErrInvalidArtifact)
	}
	if a.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema_version %d, want %d", ErrInvalidArtifact, a.SchemaVersion, SchemaVersion)
	}
	if len(a.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidArtifact)
	}
	if !finite(a.Intercept) {
		return fmt.Errorf("%w: intercept is not finite", ErrInvalidArtifact)
	}
	if c := a.Calibration; c != nil {
		if c.Method != CalibrationPlatt {
			return fmt.Errorf("%w: calibration method %q", ErrInvalidArtifact, c.Method)
		}
		if !finite(c.A) || !finite(c.B) || c.A == 0 {
			return fmt.Errorf("%w: calibration parameters", ErrInvalidArtifact)
		}
	}

	seen := make(map[string]struct{}, len(a.Features))
	for i := range a.Features {
		f := &a.Features[i]
		if f.Name == "" {
			return fmt.Errorf("%w: feature %d has no name", ErrInvalidArtifact, i)
		}
		if _, dup := seen[f.ColumnName()]; dup {
			return fmt.Errorf("%w: column %q used twice", ErrInvalidArtifact, f.ColumnName())
		}
		seen[f.ColumnName()] = struct{}{}
		if err := f.validate(); err != nil {
			return fmt.Errorf("%w: feature %q: %w", ErrInvalidArtifact, f.Name, err)
		}
	}
	return nil
}

func (f *Feature) validate() error {
	switch f.Missing.Policy {
	case "":
		f.Missing.Policy = MissingReject
	case MissingReject, MissingImpute:
	default:
		return fmt.Errorf("unknown missing policy %q", f.Missing.Policy)
	}
	if f.Optional && f.Missing.Policy != MissingImpute {
		return errors.New("optional features must impute")
	}

	switch f.Kind {
	case KindNumeric:
		if !finite(f.Weight) {
			return errors.New("weight is not finite")
		}
		switch f.Scaling.Method {
		case "":
			f.Scaling.Method = ScaleNone
		case ScaleNone:
		case ScaleZScore:
			if !(f.Scaling.Std > 0) {
				return errors.New("zscore std must be positive")
			}
		case ScaleMinMax:
			if !(f.Scaling.Max > f.Scaling.Min) {
				return errors.New("minmax max must exceed min")
			}
		default:
			return fmt.Errorf("unknown scaling %q", f.Scaling.Method)
		}
	case KindCategorical:
		if len(f.Categories) == 0 {
			return errors.New("no categories")
		}
		if len(f.Weights) != len(f.Categories)+1 {
			return fmt.Errorf("%d weights for %d categories, want categories+1", len(f.Weights), len(f.Categories))
		}
		for _, w := range f.Weights {
			if !finite(w) {
				return errors.New("weight is not finite")
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", f.Kind)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
