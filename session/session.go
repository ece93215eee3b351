// Package session runs one bridge session end to end.
//
// A session owns a looper, a sandbox page and a bridge. Host calls are issued
// before the page loads and wait in the startup queue; the session then
// waits until the page is ready and every host callback is answered, or
// until the timeout, and returns the transcript with a summary and counters.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/jsbridge/adapter"
	"github.com/pithecene-io/jsbridge/bridge"
	"github.com/pithecene-io/jsbridge/log"
	"github.com/pithecene-io/jsbridge/looper"
	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/sandbox"
	"github.com/pithecene-io/jsbridge/transcript"
	"github.com/pithecene-io/jsbridge/types"
)

// ViewName is the metrics view dimension for sandbox sessions.
const ViewName = "goja"

// DefaultTimeout bounds how long Run waits for replies.
const DefaultTimeout = 10 * time.Second

// pollInterval is how often Run re-checks for completion.
const pollInterval = 20 * time.Millisecond

// Built-in host handler names.
const (
	// EchoHandler replies with its input.
	EchoHandler = "echo"
	// LogHandler writes its input to the session log and replies "ok".
	LogHandler = "log"
)

// Call is a host -> page call issued by the session.
type Call struct {
	Handler string
	// Data is sent as the call's data field. Nil leaves the field absent.
	Data *string
	// Notify sends the call without a response callback.
	Notify bool
}

// Config configures a session.
type Config struct {
	// SessionID identifies the session. Generated when empty.
	SessionID string
	// Page is the URL or file path to load (required).
	Page string
	// Headers are sent with the page request and its external scripts.
	Headers map[string]string
	// UserAgent overrides the sandbox fetcher's User-Agent.
	UserAgent string
	// ScriptTimeout bounds each script evaluation.
	ScriptTimeout time.Duration
	// CallbackTTL expires unanswered host callbacks. Zero disables expiry.
	CallbackTTL time.Duration
	// Timeout bounds the wait for readiness and replies (default DefaultTimeout).
	Timeout time.Duration
	// Calls are queued before the page loads, in order.
	Calls []Call
	// Handlers are registered next to the built-ins and may replace them.
	Handlers map[string]bridge.Handler
	// Logger receives session diagnostics. Nil discards.
	Logger *log.Logger
	// TranscriptWriter, when set, receives every record as it happens.
	TranscriptWriter io.Writer
	// Fetcher overrides the sandbox page fetcher.
	Fetcher sandbox.Fetcher
}

// Reply is the answer to one host call.
type Reply struct {
	Handler string `json:"handler" yaml:"handler"`
	Data    string `json:"data" yaml:"data"`
}

// Result is the outcome of a finished session.
type Result struct {
	SessionID  string
	Page       string
	Outcome    string
	LoadError  error
	TimedOut   bool
	Replies    []Reply
	Records    []types.TranscriptRecord
	Summary    transcript.Summary
	Metrics    metrics.Snapshot
	Console    []sandbox.ConsoleEntry
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock session length.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns the load error, if any, as the session's run error.
func (r *Result) Err() error {
	return r.LoadError
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.Page == "" {
		return errors.New("page is required")
	}
	for i, call := range c.Calls {
		if call.Handler == "" {
			return fmt.Errorf("calls[%d]: handler is required", i)
		}
	}
	return nil
}

// Run executes one session. Cancelling ctx ends the wait early; the result
// still reflects everything observed up to that point.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.WithPage(cfg.Page)

	result := &Result{
		SessionID: cfg.SessionID,
		Page:      cfg.Page,
		StartedAt: time.Now(),
	}

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	loop, err := looper.New(logger)
	if err != nil {
		stopLoop()
		return nil, err
	}
	loop.Start(loopCtx)
	defer func() {
		stopLoop()
		<-loop.Done()
	}()

	collector := metrics.NewCollector(cfg.SessionID, ViewName)
	rec := transcript.New(cfg.SessionID)
	if cfg.TranscriptWriter != nil {
		rec = transcript.NewStreaming(cfg.SessionID, cfg.TranscriptWriter)
	}

	page, err := sandbox.New(loop, sandbox.Options{
		Logger:        logger,
		Fetcher:       cfg.Fetcher,
		UserAgent:     cfg.UserAgent,
		ScriptTimeout: cfg.ScriptTimeout,
	})
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		loadErr  error
		loadOnce sync.Once
		replies  = make([]Reply, 0, len(cfg.Calls))
	)
	loaded := make(chan struct{})
	loop.Submit(func() {
		page.SetLoadListener(func(_ string, err error) {
			loadOnce.Do(func() {
				mu.Lock()
				loadErr = err
				mu.Unlock()
				close(loaded)
			})
		})
	})

	b := bridge.New(page, loop, bridge.Config{
		Logger:      logger,
		Collector:   collector,
		Recorder:    rec,
		CallbackTTL: cfg.CallbackTTL,
	})
	registerBuiltins(b, logger)
	for name, h := range cfg.Handlers {
		b.RegisterHandler(name, h)
	}

	for _, call := range cfg.Calls {
		if call.Notify {
			b.Send(call.Handler, call.Data, nil)
			continue
		}
		handler := call.Handler
		b.Send(handler, call.Data, func(data string) {
			mu.Lock()
			replies = append(replies, Reply{Handler: handler, Data: data})
			mu.Unlock()
		})
	}

	logger.Info("loading page", map[string]any{"calls": len(cfg.Calls)})
	b.LoadURLWithHeaders(cfg.Page, cfg.Headers)

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	result.TimedOut = !waitSettled(waitCtx, loop, b, loaded)
	if result.TimedOut {
		logger.Warn("session wait ended before settling", map[string]any{
			"ready":   b.Ready(),
			"pending": b.PendingIDs(),
		})
	}

	// Close the page and settle queued work so the transcript and counters
	// are final.
	loop.Post(page.Close)
	syncCtx, syncCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	_ = loop.Sync(syncCtx)
	syncCancel()

	if err := rec.Flush(); err != nil {
		logger.Warn("transcript flush failed", map[string]any{"error": err.Error()})
	}

	mu.Lock()
	result.Replies = append([]Reply(nil), replies...)
	result.LoadError = loadErr
	mu.Unlock()

	result.Records = rec.Records()
	result.Summary = transcript.Summarize(result.Records)
	result.Metrics = collector.Snapshot()
	result.Console = page.Console()
	result.FinishedAt = time.Now()
	result.Outcome = adapter.Outcome(result.Summary, result.LoadError)
	if result.TimedOut && result.Outcome == adapter.OutcomeSuccess && !b.Ready() {
		result.Outcome = adapter.OutcomeError
		if result.LoadError == nil {
			result.LoadError = errors.New("page did not become ready before timeout")
		}
	}

	logger.Info("session finished", map[string]any{
		"outcome":    result.Outcome,
		"records":    len(result.Records),
		"unanswered": len(result.Summary.Unanswered),
		"timed_out":  result.TimedOut,
		"duration":   result.Duration().String(),
	})
	return result, nil
}

// waitSettled blocks until the page has loaded, the bridge is ready and no
// host callback is pending. It reports false when ctx ends first.
func waitSettled(ctx context.Context, loop *looper.Looper, b *bridge.Bridge, loaded <-chan struct{}) bool {
	select {
	case <-loaded:
	case <-ctx.Done():
		return false
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if err := loop.Sync(ctx); err != nil {
			return false
		}
		if b.Ready() && b.PendingCallbacks() == 0 {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

func registerBuiltins(b *bridge.Bridge, logger *log.Logger) {
	b.RegisterHandler(EchoHandler, func(data string, reply bridge.Responder) {
		reply(data)
	})
	b.RegisterHandler(LogHandler, func(data string, reply bridge.Responder) {
		logger.Info("page log", map[string]any{"data": data})
		reply("ok")
	})
}
