// Package looper provides the controlling goroutine that owns a script context.
//
// A Looper runs posted tasks one at a time, in the order they were posted, on
// a single goroutine. Code that touches a non-thread-safe resource (a goja
// runtime, a WebView) submits its work here instead of locking.
//
// The queue is a goeventloop.Loop. Timers and microtasks scheduled through
// the loop's JS layer run on the same goroutine as posted tasks.
package looper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	goeventloop "github.com/joeycumines/go-eventloop"

	"github.com/pithecene-io/jsbridge/log"
)

var (
	// ErrRunning is returned by Run when the looper is already running.
	ErrRunning = errors.New("looper: already running")
	// ErrStopped is returned when the looper has stopped before a barrier ran.
	ErrStopped = errors.New("looper: stopped")
)

// Looper is a serial task queue bound to one goroutine.
// The zero value is not usable; create one with New.
type Looper struct {
	logger *log.Logger
	loop   *goeventloop.Loop

	// mu orders posts made before Run against the flush in Run.
	mu      sync.Mutex
	started bool
	early   []func()

	quit     atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	running atomic.Bool
	owner   atomic.Int64
	pending atomic.Int64
}

// New creates a looper. A nil logger discards task panics silently.
func New(logger *log.Logger) (*Looper, error) {
	loop, err := goeventloop.New()
	if err != nil {
		return nil, fmt.Errorf("create event loop: %w", err)
	}
	return &Looper{
		logger: logger,
		loop:   loop,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// EventLoop returns the underlying loop, for building a goeventloop.JS on it.
func (l *Looper) EventLoop() *goeventloop.Loop {
	return l.loop
}

// Run drives the event loop on the calling goroutine until ctx is done or
// Quit is called. Tasks posted before Run are kept.
func (l *Looper) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	l.mu.Lock()
	l.started = true
	early := l.early
	l.early = nil
	// The binding task goes first so every later task sees the owner.
	if err := l.loop.Submit(func() { l.owner.Store(goid()) }); err != nil {
		l.mu.Unlock()
		l.finish()
		return fmt.Errorf("bind event loop: %w", err)
	}
	for _, task := range early {
		if err := l.loop.Submit(task); err != nil {
			l.pending.Add(-1)
		}
	}
	l.mu.Unlock()

	err := l.loop.Run(loopCtx)
	l.finish()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case l.quit.Load():
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

func (l *Looper) finish() {
	l.quit.Store(true)
	l.owner.Store(0)
	_ = l.loop.Close()
	close(l.done)
}

// Start runs the looper on a new goroutine and returns once that goroutine
// owns the queue.
func (l *Looper) Start(ctx context.Context) {
	ready := make(chan struct{})
	l.Post(func() { close(ready) })
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("looper exited", map[string]any{"error": err.Error()})
		}
	}()
	select {
	case <-ready:
	case <-l.done:
	}
}

// Post enqueues task without blocking. It returns false once the looper has
// stopped. Tasks posted from one goroutine run in the order posted.
func (l *Looper) Post(task func()) bool {
	if task == nil || l.quit.Load() {
		return false
	}
	wrapped := l.wrap(task)
	l.pending.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		l.early = append(l.early, wrapped)
		return true
	}
	if err := l.loop.Submit(wrapped); err != nil {
		l.pending.Add(-1)
		return false
	}
	return true
}

// Submit runs task immediately when called on the controlling goroutine and
// posts it otherwise.
func (l *Looper) Submit(task func()) bool {
	if l.OnLooper() {
		l.run(task)
		return true
	}
	return l.Post(task)
}

// OnLooper reports whether the caller is the controlling goroutine.
func (l *Looper) OnLooper() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid()
}

// Sync waits until every task posted before it has run. On the controlling
// goroutine it returns immediately.
func (l *Looper) Sync(ctx context.Context) error {
	if l.OnLooper() {
		return nil
	}
	barrier := make(chan struct{})
	if !l.Post(func() { close(barrier) }) {
		return ErrStopped
	}
	select {
	case <-barrier:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Quit stops the looper. Tasks still queued are discarded.
func (l *Looper) Quit() {
	l.stopOnce.Do(func() {
		l.quit.Store(true)
		close(l.stop)
	})
}

// Done is closed once Run has returned.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Pending returns the number of posted tasks that have not started.
func (l *Looper) Pending() int {
	return int(l.pending.Load())
}

func (l *Looper) wrap(task func()) func() {
	return func() {
		l.pending.Add(-1)
		if l.quit.Load() {
			return
		}
		l.run(task)
	}
}

func (l *Looper) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("looper task panicked", map[string]any{
				"panic": fmt.Sprint(r),
			})
		}
	}()
	task()
}

var goroutinePrefix = []byte("goroutine ")

// goid returns the current goroutine id from the runtime stack header.
// goeventloop tracks its own loop goroutine but does not export the check.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
