package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"
)

type outcome struct {
	name string
	err  error
}

func recordingHook() (Hook, <-chan outcome) {
	ch := make(chan outcome, 16)
	return func(name string, err error) { ch <- outcome{name: name, err: err} }, ch
}

func TestEnqueue(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should run task and report result to hook", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "t1", Run: func(ctx context.Context) error { return nil }, Hook: hook})).To(Succeed())

		var o outcome
		Eventually(outcomes).Should(Receive(&o))
		Expect(o).To(Equal(outcome{name: "t1"}))

		Expect(d.Enqueue(Task{Name: "t2", Run: func(ctx context.Context) error { return errors.New("boom") }, Hook: hook})).To(Succeed())
		Eventually(outcomes).Should(Receive(&o))
		Expect(o.name).To(Equal("t2"))
		Expect(o.err).To(MatchError("boom"))
	})

	t.Run("should reject invalid task", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		Expect(d.Enqueue(Task{Run: func(ctx context.Context) error { return nil }})).ToNot(Succeed())
		Expect(d.Enqueue(Task{Name: "no-run"})).ToNot(Succeed())
	})

	t.Run("should reject task with the same name while it is pending", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		release := make(chan struct{})
		defer func() {
			close(release)
			d.Stop(context.Background())
		}()

		block := func(ctx context.Context) error { <-release; return nil }
		Expect(d.Enqueue(Task{Name: "same", Run: block})).To(Succeed())
		Expect(d.Enqueue(Task{Name: "same", Run: block})).To(Equal(ErrDuplicateTask))
	})

	t.Run("should reject task completed within dedup window and accept it after", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1, DedupWindow: 100 * time.Millisecond})
		defer d.Stop(context.Background())

		hook, outcomes := recordingHook()
		noop := func(ctx context.Context) error { return nil }
		Expect(d.Enqueue(Task{Name: "once", Run: noop, Hook: hook})).To(Succeed())
		Eventually(outcomes).Should(Receive())

		Expect(d.Enqueue(Task{Name: "once", Run: noop})).To(Equal(ErrDuplicateTask))
		Eventually(func() error {
			return d.Enqueue(Task{Name: "once", Run: noop})
		}, time.Second, 20*time.Millisecond).Should(Succeed())
	})

	t.Run("should report queue full", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
		release := make(chan struct{})
		started := make(chan struct{})
		defer func() {
			close(release)
			d.Stop(context.Background())
		}()

		Expect(d.Enqueue(Task{Name: "running", Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}})).To(Succeed())
		Eventually(started).Should(BeClosed())

		noop := func(ctx context.Context) error { return nil }
		Expect(d.Enqueue(Task{Name: "queued", Run: noop})).To(Succeed())
		Expect(d.Enqueue(Task{Name: "overflow", Run: noop})).To(Equal(ErrQueueFull))
	})
}

func TestTaskTimeoutAndPanic(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should fail task exceeding its timeout", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "slow", Timeout: 20 * time.Millisecond, Hook: hook,
			Run: func(ctx context.Context) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			}})).To(Succeed())

		var o outcome
		Eventually(outcomes, time.Second).Should(Receive(&o))
		Expect(errors.Is(o.err, context.DeadlineExceeded)).To(BeTrue())
	})

	t.Run("should not bound task without timeout", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "unbounded", Hook: hook,
			Run: func(ctx context.Context) error {
				_, hasDeadline := ctx.Deadline()
				if hasDeadline {
					return errors.New("unexpected deadline")
				}
				time.Sleep(50 * time.Millisecond)
				return nil
			}})).To(Succeed())

		var o outcome
		Eventually(outcomes, time.Second).Should(Receive(&o))
		Expect(o.err).To(BeNil())
	})

	t.Run("should recover panic and report it to hook", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "panic", Hook: hook, Run: func(ctx context.Context) error {
			panic("something wrong")
		}})).To(Succeed())

		var o outcome
		Eventually(outcomes).Should(Receive(&o))
		Expect(o.err).To(MatchError("task panic panicked: something wrong"))
	})

	t.Run("should survive panicking hook", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})
		defer d.Stop(context.Background())

		Expect(d.Enqueue(Task{Name: "bad-hook", Run: func(ctx context.Context) error { return nil },
			Hook: func(name string, err error) { panic("hook") }})).To(Succeed())

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error { return nil }, Hook: hook})).To(Succeed())
		Eventually(outcomes).Should(Receive())
	})
}

func TestThrottledTasks(t *testing.T) {
	RegisterTestingT(t)

	d := NewDispatcher(Options{Workers: 2, Limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1)})
	defer d.Stop(context.Background())

	var lock sync.Mutex
	var finished []time.Time
	hook := func(name string, err error) {
		lock.Lock()
		defer lock.Unlock()
		finished = append(finished, time.Now())
	}
	noop := func(ctx context.Context) error { return nil }

	Expect(d.Enqueue(Task{Name: "n1", Run: noop, Hook: hook, Throttled: true})).To(Succeed())
	Expect(d.Enqueue(Task{Name: "n2", Run: noop, Hook: hook, Throttled: true})).To(Succeed())

	Eventually(func() int {
		lock.Lock()
		defer lock.Unlock()
		return len(finished)
	}, 2*time.Second).Should(Equal(2))

	lock.Lock()
	defer lock.Unlock()
	gap := finished[1].Sub(finished[0])
	if gap < 0 {
		gap = -gap
	}
	Expect(gap).To(BeNumerically(">=", 50*time.Millisecond))
}

func TestStop(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should drain queued tasks and refuse new ones", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})

		var lock sync.Mutex
		count := 0
		inc := func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			lock.Lock()
			count++
			lock.Unlock()
			return nil
		}
		Expect(d.Enqueue(Task{Name: "a", Run: inc})).To(Succeed())
		Expect(d.Enqueue(Task{Name: "b", Run: inc})).To(Succeed())

		Expect(d.Stop(context.Background())).To(Succeed())
		Expect(count).To(Equal(2))
		Expect(d.Enqueue(Task{Name: "c", Run: inc})).To(Equal(ErrStopped))
		Expect(d.Stop(context.Background())).To(Succeed())
	})

	t.Run("should cancel running tasks when stop context expires", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})

		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "long", Hook: hook, Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}})).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		Expect(d.Stop(ctx)).To(Equal(context.DeadlineExceeded))

		var o outcome
		Eventually(outcomes).Should(Receive(&o))
		Expect(o.err).To(Equal(ErrShutdown))
	})

	t.Run("should report shutdown to tasks ignoring cancellation", func(t *testing.T) {
		d := NewDispatcher(Options{Workers: 1})

		release := make(chan struct{})
		defer close(release)
		hook, outcomes := recordingHook()
		Expect(d.Enqueue(Task{Name: "stubborn", Hook: hook, Run: func(ctx context.Context) error {
			<-release
			return nil
		}})).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		Expect(d.Stop(ctx)).To(Equal(context.DeadlineExceeded))

		var o outcome
		Eventually(outcomes).Should(Receive(&o))
		Expect(o.name).To(Equal("stubborn"))
		Expect(o.err).To(Equal(ErrShutdown))
	})
}
