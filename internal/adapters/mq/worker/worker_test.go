package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	queue "github.com/okian/churnscore/internal/adapters/mq/queue"
	worker "github.com/okian/churnscore/internal/adapters/mq/worker"
	"github.com/okian/churnscore/internal/domain/model"
	logging "github.com/okian/churnscore/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logging.Init(); err != nil {
		panic(err)
	}
	goleak.VerifyTestMain(m)
}

// recordingProcessor remembers processed batch IDs and fails selected ones.
type recordingProcessor struct {
	mu     sync.Mutex
	seen   []string
	fail   map[string]error
	delay  time.Duration
	notify chan string
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{fail: make(map[string]error), notify: make(chan string, 100)}
}

func (p *recordingProcessor) Process(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, j.BatchID)
	err := p.fail[j.BatchID]
	p.mu.Unlock()
	p.notify <- j.BatchID
	return err
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		p := newRecordingProcessor()
		p.fail["bad"] = errors.New("boom")
		w := worker.NewInMemoryWorker(q, p, worker.WithName("w-test"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs are enqueued", func() {
			for _, id := range []string{"a", "bad", "c"} {
				convey.So(q.Enqueue(ctx, model.Job{BatchID: id}), convey.ShouldBeNil)
			}

			convey.Convey("Then each is processed in order, errors do not stop the loop", func() {
				for _, want := range []string{"a", "bad", "c"} {
					select {
					case got := <-p.notify:
						convey.So(got, convey.ShouldEqual, want)
					case <-time.After(2 * time.Second):
						t.Fatal("timed out waiting for job")
					}
				}
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue is closed the worker exits", func() {
			convey.So(q.Close(), convey.ShouldBeNil)
			select {
			case <-w.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("worker did not exit")
			}
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(50))
		p := newRecordingProcessor()
		pool := worker.NewPool(4, q, p)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)

		for i := 0; i < 20; i++ {
			convey.So(q.Enqueue(ctx, model.Job{BatchID: fmt.Sprintf("b%02d", i)}), convey.ShouldBeNil)
		}

		convey.Convey("When the caller context is cancelled and the pool shut down", func() {
			cancel()
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then every accepted job was drained", func() {
				convey.So(p.processed(), convey.ShouldHaveLength, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with slow jobs and a short drain deadline", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		p := newRecordingProcessor()
		p.delay = time.Minute
		pool := worker.NewPool(1, q, p)
		pool.Start(context.Background())
		convey.So(q.Enqueue(context.Background(), model.Job{BatchID: "slow"}), convey.ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := pool.Shutdown(ctx)

		convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
		convey.So(p.processed(), convey.ShouldBeEmpty)
	})

	convey.Convey("A pool that never started shuts down immediately", t, func() {
		pool := worker.NewPool(2, queue.NewInMemoryQueue(), newRecordingProcessor())
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
	})
}
