package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sqlreview/metrics"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ErrDuplicateTask = errors.New("task with the same name is already queued or recently completed")
	ErrQueueFull     = errors.New("dispatch queue is full")
	ErrStopped       = errors.New("dispatcher is stopped")
	// ErrShutdown is reported to hooks of tasks interrupted by Stop; their work may still be in progress.
	ErrShutdown = errors.New("dispatcher shut down before the task completed")
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultDedupWindow = time.Minute
)

// Hook receives the outcome of a task after it finished, timed out or panicked.
type Hook func(name string, err error)

type Task struct {
	Name string
	Kind string
	Run  func(ctx context.Context) error
	Hook Hook

	// Timeout <= 0 leaves the task unbounded.
	Timeout   time.Duration
	Throttled bool
}

type Enqueuer interface {
	Enqueue(task Task) error
}

type Options struct {
	Workers     int
	QueueSize   int
	DedupWindow time.Duration
	Limiter     *rate.Limiter
}

type Dispatcher struct {
	queue   chan Task
	limiter *rate.Limiter
	window  time.Duration

	lock      sync.Mutex
	pending   map[string]struct{}
	completed *cache.Cache
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	cleanup := opts.DedupWindow * 2
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:     make(chan Task, opts.QueueSize),
		limiter:   opts.Limiter,
		window:    opts.DedupWindow,
		pending:   map[string]struct{}{},
		completed: cache.New(opts.DedupWindow, cleanup),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Enqueue(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("invalid task: name and run function are required")
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.stopped {
		return ErrStopped
	}
	if _, found := d.pending[task.Name]; found {
		return ErrDuplicateTask
	}
	if _, found := d.completed.Get(task.Name); found {
		return ErrDuplicateTask
	}

	select {
	case d.queue <- task:
		d.pending[task.Name] = struct{}{}
		metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for the queued ones to drain.
// When ctx is done first, running tasks are cancelled, their hooks get ErrShutdown, and ctx.Err() is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.lock.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.lock.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for task := range d.queue {
		metrics.QueueDepth.Dec()
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task Task) {
	var err error
	if task.Throttled && d.limiter != nil {
		err = d.limiter.Wait(d.ctx)
	}
	if err == nil {
		err = d.run(task)
	}
	if err != nil && d.ctx.Err() != nil {
		err = ErrShutdown
	}

	d.lock.Lock()
	delete(d.pending, task.Name)
	if d.window > 0 {
		d.completed.SetDefault(task.Name, true)
	}
	d.lock.Unlock()

	fields := logrus.Fields{"task": task.Name, "kind": task.Kind}
	if err != nil {
		logrus.WithFields(fields).Errorf("task failed: %v", err)
	} else {
		logrus.WithFields(fields).Info("task finished")
	}
	metrics.ObserveTask(task.Kind, err)

	if task.Hook != nil {
		invokeHook(task, err)
	}
}

func (d *Dispatcher) run(task Task) error {
	ctx := d.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		result <- safeRun(ctx, task)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, ret)
		}
	}()
	return task.Run(ctx)
}

func invokeHook(task Task, err error) {
	defer func() {
		if ret := recover(); ret != nil {
			logrus.WithField("task", task.Name).Errorf("task hook panicked: %v", ret)
		}
	}()
	task.Hook(task.Name, err)
}
