package classifier_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/internal/domain/model"
)

const tinyArtifact = `
name: tiny
version: "2"
schema_version: 1
intercept: 0
features:
  - name: x
    kind: numeric
    scaling: {method: none}
    weight: 1
  - name: plan
    kind: categorical
    categories: [a, b]
    weights: [1, -1, 0]
`

func TestDefaultModel(t *testing.T) {
	Convey("Given the bundled model", t, func() {
		m, err := classifier.Default()
		So(err, ShouldBeNil)

		Convey("It exposes identity and shape", func() {
			So(m.Name(), ShouldEqual, "telco-churn-logit")
			So(m.Version(), ShouldEqual, "1.0.0")
			So(m.Hash(), ShouldHaveLength, 64)
			So(m.Dim(), ShouldEqual, 30)
			So(m.RequiredColumns(), ShouldContain, "tenure")
			So(m.RequiredColumns(), ShouldContain, "Contract")
		})

		Convey("Predictions stay within [0, 1]", func() {
			vec := make(model.FeatureVector, m.Dim())
			for i := range vec {
				vec[i] = 50
			}
			p, err := m.Predict(vec)
			So(err, ShouldBeNil)
			So(p, ShouldBeBetweenOrEqual, 0, 1)
		})

		Convey("Predict is deterministic", func() {
			vec := make(model.FeatureVector, m.Dim())
			vec[0] = -1.2
			a, _ := m.Predict(vec)
			b, _ := m.Predict(vec)
			So(a, ShouldEqual, b)
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given a tiny uncalibrated model", t, func() {
		m, err := classifier.Parse([]byte(tinyArtifact))
		So(err, ShouldBeNil)
		So(m.Dim(), ShouldEqual, 4)

		Convey("A zero logit is one half", func() {
			p, err := m.Predict(model.FeatureVector{0, 0, 0, 0})
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 0.5)
		})

		Convey("Large logits saturate without overflow", func() {
			p, err := m.Predict(model.FeatureVector{1e6, 0, 0, 0})
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 1)
			p, err = m.Predict(model.FeatureVector{-1e6, 0, 0, 0})
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 0)
		})

		Convey("Wrong length is malformed", func() {
			_, err := m.Predict(model.FeatureVector{1})
			So(errors.Is(err, classifier.ErrMalformedVector), ShouldBeTrue)
		})

		Convey("Non-finite slots are malformed", func() {
			_, err := m.Predict(model.FeatureVector{math.NaN(), 0, 0, 0})
			So(errors.Is(err, classifier.ErrMalformedVector), ShouldBeTrue)
			_, err = m.Predict(model.FeatureVector{0, math.Inf(1), 0, 0})
			So(errors.Is(err, classifier.ErrMalformedVector), ShouldBeTrue)
		})
	})
}

func TestParseRejectsBadArtifacts(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown field", "name: a\nversion: b\nschema_version: 1\nbogus: 1\nfeatures: [{name: x, kind: numeric}]\n"},
		{"wrong schema version", "name: a\nversion: b\nschema_version: 9\nfeatures: [{name: x, kind: numeric}]\n"},
		{"no features", "name: a\nversion: b\nschema_version: 1\n"},
		{"weights mismatch", "name: a\nversion: b\nschema_version: 1\nfeatures: [{name: x, kind: categorical, categories: [p], weights: [1]}]\n"},
		{"zero std", "name: a\nversion: b\nschema_version: 1\nfeatures: [{name: x, kind: numeric, scaling: {method: zscore, std: 0}}]\n"},
		{"optional without impute", "name: a\nversion: b\nschema_version: 1\nfeatures: [{name: x, kind: numeric, optional: true}]\n"},
		{"duplicate column", "name: a\nversion: b\nschema_version: 1\nfeatures: [{name: x, kind: numeric}, {name: y, column: x, kind: numeric}]\n"},
		{"bad calibration", "name: a\nversion: b\nschema_version: 1\ncalibration: {method: isotonic}\nfeatures: [{name: x, kind: numeric}]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := classifier.Parse([]byte(tc.yaml)); !errors.Is(err, classifier.ErrInvalidArtifact) {
				t.Fatalf("Parse() error = %v, want ErrInvalidArtifact", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	Convey("Given an artifact on disk", t, func() {
		path := filepath.Join(t.TempDir(), "model.yaml")
		So(os.WriteFile(path, []byte(tinyArtifact), 0o600), ShouldBeNil)

		m, err := classifier.LoadFile(path)
		So(err, ShouldBeNil)
		So(m.Version(), ShouldEqual, "2")

		Convey("Missing files fail to load", func() {
			_, err := classifier.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
			So(errors.Is(err, classifier.ErrLoad), ShouldBeTrue)
		})
	})
}

func TestHolder(t *testing.T) {
	Convey("Given an empty holder", t, func() {
		h := classifier.NewHolder()

		_, err := h.Get()
		var me *model.ModelError
		So(errors.As(err, &me), ShouldBeTrue)
		So(me.Kind, ShouldEqual, model.ModelUnavailable)

		m, err := classifier.Parse([]byte(tinyArtifact))
		So(err, ShouldBeNil)
		So(h.Load(m), ShouldBeNil)

		got, err := h.Get()
		So(err, ShouldBeNil)
		So(got, ShouldEqual, m)

		Convey("A second load is refused", func() {
			So(errors.Is(h.Load(m), classifier.ErrAlreadyLoaded), ShouldBeTrue)
		})
	})
}
