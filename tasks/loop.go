// Package tasks provides the task loop that plays the role of a document's
// main thread. Tasks run on the shared goroutine pool through sequenced task
// runners; a Loop makes sure no two of its tasks ever run at the same time.
package tasks

import (
	"context"
	"sync"

	taskrunner "github.com/Swind/go-task-runner"
	"github.com/Swind/go-task-runner/core"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when waiting on a loop that was closed and drained
// before the awaited condition held.
var ErrClosed = errors.New("task loop closed")

// StartPool starts the goroutine pool every Loop posts to. Call it once at
// startup.
func StartPool(workers int) { taskrunner.InitGlobalThreadPool(workers) }

// StopPool shuts the pool down.
func StopPool() { taskrunner.ShutdownGlobalThreadPool() }

// Loop runs posted tasks one at a time. Normal tasks go to a default
// sequence and high priority tasks to a user-blocking one, so the pool picks
// high priority work first; while any is queued, ShouldYieldForHighPriorityWork
// asks a parser to give up its turn.
type Loop struct {
	normal func(task func(context.Context))
	high   func(task func(context.Context))

	// held while a task or a RunUntil condition runs
	exec sync.Mutex

	mu          sync.Mutex
	pending     int
	highPending int
	ran         int
	closed      bool
	drained     chan struct{}
	drainOnce   sync.Once
	watchers    map[*watcher]struct{}

	log logrus.FieldLogger
}

type watcher struct {
	done  func() bool
	ch    chan struct{}
	fired bool
}

// check must run with exec held.
func (w *watcher) check() {
	if !w.fired && w.done() {
		w.fired = true
		close(w.ch)
	}
}

// NewLoop creates a loop on the pool started by StartPool.
func NewLoop(log logrus.FieldLogger) *Loop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	normal := taskrunner.CreateTaskRunner(core.DefaultTaskTraits())
	high := taskrunner.CreateTaskRunner(core.TaskTraits{Priority: core.TaskPriorityUserBlocking})
	return &Loop{
		normal:   func(task func(context.Context)) { normal.PostTask(task) },
		high:     func(task func(context.Context)) { high.PostTask(task) },
		drained:  make(chan struct{}),
		watchers: make(map[*watcher]struct{}),
		log:      log.WithField("component", "tasks"),
	}
}

// PostTask queues task. It is safe to call from any goroutine; tasks posted
// after Close are dropped.
func (l *Loop) PostTask(task func()) { l.post(task, false) }

// PostHighPriorityTask queues task on the user-blocking sequence.
func (l *Loop) PostHighPriorityTask(task func()) { l.post(task, true) }

func (l *Loop) post(task func(), high bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Debug("task posted to closed loop dropped")
		return
	}
	l.pending++
	if high {
		l.highPending++
	}
	l.mu.Unlock()

	run := func(context.Context) { l.run(task, high) }
	if high {
		l.high(run)
	} else {
		l.normal(run)
	}
}

func (l *Loop) run(task func(), high bool) {
	l.exec.Lock()
	if high {
		l.mu.Lock()
		l.highPending--
		l.mu.Unlock()
	}
	task()

	l.mu.Lock()
	l.pending--
	l.ran++
	ws := make([]*watcher, 0, len(l.watchers))
	for w := range l.watchers {
		ws = append(ws, w)
	}
	l.mu.Unlock()
	for _, w := range ws {
		w.check()
	}
	l.exec.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.signalDrained()
}

// signalDrained must run with mu held.
func (l *Loop) signalDrained() {
	if l.closed && l.pending == 0 {
		l.drainOnce.Do(func() { close(l.drained) })
	}
}

// ShouldYieldForHighPriorityWork reports queued high priority tasks.
func (l *Loop) ShouldYieldForHighPriorityWork() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.highPending > 0
}

// Pending counts queued tasks of both priorities, including a running one.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Ran counts the tasks run so far.
func (l *Loop) Ran() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ran
}

// RunUntil waits until done reports true. done is checked once up front and
// then after every task, never at the same time as a task, so it may read
// state the tasks own.
func (l *Loop) RunUntil(ctx context.Context, done func() bool) error {
	w := &watcher{done: done, ch: make(chan struct{})}
	l.mu.Lock()
	l.watchers[w] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.watchers, w)
		l.mu.Unlock()
	}()

	l.exec.Lock()
	w.check()
	l.exec.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-l.drained:
		// the last task may have satisfied done
		select {
		case <-w.ch:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "running tasks")
	}
}

// Wait blocks until the loop is closed and every queued task has run.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.drained:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "draining tasks")
	}
}

// Close stops accepting tasks. Queued tasks still run; Wait reports when they
// have.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.signalDrained()
}
