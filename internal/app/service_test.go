package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/churnscore/internal/app"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/threshold"
	"github.com/okian/churnscore/internal/domain/types"
	"github.com/okian/churnscore/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const telcoHeader = "customerID,gender,SeniorCitizen,tenure,Contract,InternetService,PaymentMethod,PaperlessBilling,TechSupport,OnlineSecurity,MonthlyCharges,TotalCharges"

func telcoCSV(rows int) []byte {
	contracts := []string{"Month-to-month", "One year", "Two year"}
	var b strings.Builder
	b.WriteString(telcoHeader + "\n")
	for i := 0; i < rows; i++ {
		tenure := i % 72
		monthly := 20 + float64(i%100)
		fmt.Fprintf(&b, "C%04d,Male,%d,%d,%s,DSL,Mailed check,No,Yes,Yes,%.2f,%.2f\n",
			i, i%2, tenure, contracts[i%3], monthly, monthly*float64(tenure))
	}
	return []byte(b.String())
}

func startService(opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithWorkerCount(2)}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func stopService(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	So(svc.Stop(ctx), ShouldBeNil)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should not serve requests before Start", func() {
			_, err := svc.ScoreSync(context.Background(), service.Submission{Data: telcoCSV(1), Threshold: 0.5})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.Submit(context.Background(), service.Submission{Data: telcoCSV(1), Threshold: 0.5})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.ModelInfo(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Then it should use the default threshold", func() {
			So(svc.DefaultThreshold(), ShouldEqual, threshold.Default)
		})

		Convey("Then stopping it should be a no-op", func() {
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startService()
		defer func() { _ = svc.Stop(context.Background()) }()

		Convey("Then stats should report it as started", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["modelVersion"], ShouldEqual, "1.0.0")
		})

		Convey("When starting it again", func() {
			err := svc.Start(context.Background())

			Convey("Then it should be a no-op", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When stopping it", func() {
			stopService(svc)

			Convey("Then stats should report it as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given an invalid default threshold", t, func() {
		svc := service.New(service.WithDefaultThreshold(1.5))

		Convey("Then Start should fail", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_ScoreSync(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService()
		defer stopService(svc)
		ctx := context.Background()

		Convey("When scoring a valid table", func() {
			res, err := svc.ScoreSync(ctx, service.Submission{Data: telcoCSV(20), Threshold: 0.5})

			Convey("Then every row should be scored and labeled", func() {
				So(err, ShouldBeNil)
				So(res.Report.Summary.Total, ShouldEqual, 20)
				So(res.Report.Summary.Succeeded, ShouldEqual, 20)
				So(res.Report.State, ShouldEqual, model.StateComplete)
				So(string(res.Output), ShouldStartWith, telcoHeader+","+model.ColumnProbability+","+model.ColumnPrediction)
			})
		})

		Convey("When the expected model version does not match", func() {
			_, err := svc.ScoreSync(ctx, service.Submission{Data: telcoCSV(2), Threshold: 0.5, ModelVersion: "9.9.9"})

			Convey("Then it should fail with a version mismatch", func() {
				So(service.ErrorKind(err), ShouldEqual, string(model.ModelVersionMismatch))
			})
		})

		Convey("When a required column is missing", func() {
			data := []byte("customerID,gender\nC1,Male\n")
			_, err := svc.ScoreSync(ctx, service.Submission{Data: data, Threshold: 0.5})

			Convey("Then the whole batch should be rejected", func() {
				So(service.ErrorKind(err), ShouldEqual, string(model.BatchMissingColumns))
			})
		})
	})
}

func TestService_Submit_Validation(t *testing.T) {
	Convey("Given a started service with a small upload limit", t, func() {
		svc := startService(service.WithMaxUploadBytes(64))
		defer stopService(svc)
		ctx := context.Background()

		Convey("Then an out-of-range threshold should be rejected", func() {
			_, err := svc.Submit(ctx, service.Submission{Data: []byte("a\n1\n"), Threshold: -0.1})
			So(service.ErrorKind(err), ShouldEqual, string(model.BatchInvalidThreshold))
		})

		Convey("Then an oversized upload should be rejected", func() {
			_, err := svc.Submit(ctx, service.Submission{Data: telcoCSV(10), Threshold: 0.5})
			So(service.ErrorKind(err), ShouldEqual, string(model.BatchTooLarge))
		})

		Convey("Then a mismatched model version should be rejected", func() {
			_, err := svc.Submit(ctx, service.Submission{Data: []byte("a\n1\n"), Threshold: 0.5, ModelVersion: "2.0.0"})
			So(service.ErrorKind(err), ShouldEqual, string(model.ModelVersionMismatch))
		})

		Convey("Then nothing should have been stored", func() {
			list, err := svc.Batches(ctx, 10)
			So(err, ShouldBeNil)
			So(list, ShouldBeEmpty)
		})
	})
}

func TestService_Lookups(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService()
		defer stopService(svc)
		ctx := context.Background()

		Convey("Then unknown batches should not be found", func() {
			_, err := svc.Batch(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			_, err = svc.Download(ctx, "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			_, err = svc.Preview(ctx, "missing", 3)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then model info should describe the bundled model", func() {
			info, err := svc.ModelInfo(ctx)
			So(err, ShouldBeNil)
			So(info.Name, ShouldEqual, "telco-churn-logit")
			So(info.Dim, ShouldEqual, 30)
			So(info.RequiredColumns, ShouldContain, "tenure")
			So(info.Features, ShouldHaveLength, 10)
		})
	})
}

func TestPreviewTable(t *testing.T) {
	Convey("Given a semicolon separated table", t, func() {
		data := []byte("a;b\n1;2\n3;4\n5;6\n")

		Convey("When previewing two rows", func() {
			p, err := service.PreviewTable(data, 2)

			Convey("Then only the head should be returned", func() {
				So(err, ShouldBeNil)
				So(p.Columns, ShouldResemble, []string{"a", "b"})
				So(p.Rows, ShouldResemble, [][]string{{"1", "2"}, {"3", "4"}})
				So(p.RowCount, ShouldEqual, 3)
				So(p.ColumnCount, ShouldEqual, 2)
				So(p.Delimiter, ShouldEqual, ";")
			})
		})

		Convey("When previewing with no row count", func() {
			p, err := service.PreviewTable(data, 0)

			Convey("Then the default head size should apply", func() {
				So(err, ShouldBeNil)
				So(p.Rows, ShouldHaveLength, 3)
			})
		})
	})

	Convey("Given an empty upload", t, func() {
		_, err := service.PreviewTable(nil, 5)

		Convey("Then it should be reported as empty", func() {
			So(service.ErrorKind(err), ShouldEqual, string(model.BatchEmpty))
		})
	})
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"batch", model.NewBatchError(model.BatchTooManyRows, "x", nil), "too_many_rows"},
		{"model", &model.ModelError{Kind: model.ModelUnavailable}, "unavailable"},
		{"wrapped batch", fmt.Errorf("run: %w", model.NewBatchError(model.BatchEmpty, "x", nil)), "empty"},
		{"cancelled", context.Canceled, "cancelled"},
		{"deadline", context.DeadlineExceeded, "cancelled"},
		{"queue", service.ErrQueueFull, "queue_full"},
		{"other", errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := service.ErrorKind(tc.err); got != tc.want {
				t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func waitFor(svc *service.Service, id string) *types.Batch {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, err := svc.Batch(context.Background(), id)
		if err == nil && b.Status.Terminal() {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
