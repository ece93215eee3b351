// Package sandbox implements bridge.WebView on a goja JavaScript runtime.
//
// A Page behaves like a minimal browser tab: LoadURL fetches a page (HTML or
// plain JavaScript) and runs its scripts in a fresh runtime, reporting load
// progress along the way. JS interfaces, console output, timers and
// queueMicrotask are provided; there is no DOM.
//
// A Page is owned by a looper.Looper. Every exported method except New must
// be called on the looper's controlling goroutine.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	goeventloop "github.com/joeycumines/go-eventloop"

	"github.com/pithecene-io/jsbridge/log"
	"github.com/pithecene-io/jsbridge/looper"
)

// DefaultScriptTimeout bounds a single script evaluation.
const DefaultScriptTimeout = 5 * time.Second

// Progress values reported during a page load.
const (
	ProgressStarted  = 10
	ProgressFinished = 100
)

// ErrScriptTimeout is returned when a script exceeds the script timeout.
var ErrScriptTimeout = errors.New("sandbox: script timeout exceeded")

// Options configures a Page.
type Options struct {
	// Logger receives console output and load diagnostics. Nil discards.
	Logger *log.Logger
	// Fetcher loads pages. Defaults to an HTTPFetcher.
	Fetcher Fetcher
	// UserAgent is sent with HTTP requests by the default fetcher.
	UserAgent string
	// ScriptTimeout bounds each evaluation. Defaults to DefaultScriptTimeout.
	ScriptTimeout time.Duration
}

// ConsoleEntry is one console.* call made by the page.
type ConsoleEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// Page is a goja-backed WebView.
type Page struct {
	loop    *looper.Looper
	js      *goeventloop.JS
	logger  *log.Logger
	fetcher Fetcher
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// Fields below are owned by the controlling goroutine.
	vm        *goja.Runtime
	url       string
	gen       uint64
	depth     int
	ifaces    map[string]map[string]func(string)
	progress  func(int)
	onLoad    func(url string, err error)
	timers    map[uint64]timerKind
	loadErr   error

	consoleMu sync.Mutex
	console   []ConsoleEntry
}

// New creates a page driven by loop. The page starts without a document;
// scripts evaluated before the first LoadURL run against about:blank.
func New(loop *looper.Looper, opts Options) (*Page, error) {
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = DefaultScriptTimeout
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher(opts.UserAgent, 0)
	}
	js, err := goeventloop.NewJS(loop.EventLoop())
	if err != nil {
		return nil, fmt.Errorf("create page timers: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{
		loop:    loop,
		js:      js,
		logger:  opts.Logger,
		fetcher: opts.Fetcher,
		timeout: opts.ScriptTimeout,
		ctx:     ctx,
		cancel:  cancel,
		url:     BlankURL,
		ifaces:  make(map[string]map[string]func(string)),
		timers:  make(map[uint64]timerKind),
	}, nil
}

// URL returns the URL of the current page.
func (p *Page) URL() string {
	return p.url
}

// LoadError returns the error of the most recent completed load, if any.
func (p *Page) LoadError() error {
	return p.loadErr
}

// SetProgressListener registers the load-progress callback.
func (p *Page) SetProgressListener(fn func(progress int)) {
	p.progress = fn
}

// SetLoadListener registers a callback fired when a load completes.
func (p *Page) SetLoadListener(fn func(url string, err error)) {
	p.onLoad = fn
}

// AddJavascriptInterface exposes methods as the global object name. The
// interface is installed into the current runtime and every future page.
func (p *Page) AddJavascriptInterface(name string, methods map[string]func(arg string)) {
	p.ifaces[name] = methods
	if p.vm != nil {
		p.installInterface(p.vm, name, methods)
	}
}

// LoadURL starts loading url. Any previous page, and its timers, are
// discarded. The source is fetched off the controlling goroutine; a load
// superseded by a newer navigation is dropped.
func (p *Page) LoadURL(url string, headers map[string]string) {
	p.gen++
	gen := p.gen
	p.clearTimers()
	p.url = url
	p.vm = p.newRuntime()
	p.logger.Debug("page load started", map[string]any{"url": url})
	p.report(ProgressStarted)

	ctx := p.ctx
	go func() {
		scripts, err := p.fetchScripts(ctx, url, headers)
		p.loop.Post(func() { p.finishLoad(gen, url, scripts, err) })
	}()
}

// EvaluateScript runs script in the current page. Scripts evaluated while
// another script is running are deferred to a later task and report nil.
func (p *Page) EvaluateScript(script string) error {
	if p.depth > 0 {
		p.loop.Post(func() {
			if err := p.EvaluateScript(script); err != nil {
				p.logger.Warn("deferred script failed", map[string]any{"url": p.url, "error": err.Error()})
			}
		})
		return nil
	}
	_, err := p.run("eval", script)
	return err
}

// Console returns the console entries recorded so far.
func (p *Page) Console() []ConsoleEntry {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	return append([]ConsoleEntry(nil), p.console...)
}

// Close cancels in-flight fetches and pending timers. A closed page ignores
// loads that complete later. Like every other method it runs on the
// controlling goroutine.
func (p *Page) Close() {
	p.cancel()
	p.gen++
	p.clearTimers()
}

func (p *Page) fetchScripts(ctx context.Context, url string, headers map[string]string) ([]pageScript, error) {
	doc, err := p.fetcher.Fetch(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	return collectScripts(ctx, doc, p.fetcher, headers)
}

func (p *Page) finishLoad(gen uint64, url string, scripts []pageScript, err error) {
	if gen != p.gen {
		p.logger.Debug("discarding stale page load", map[string]any{"url": url})
		return
	}

	if err != nil {
		p.logger.Error("page load failed", map[string]any{"url": url, "error": err.Error()})
	}
	for _, s := range scripts {
		if _, runErr := p.run(s.Name, s.Source); runErr != nil {
			p.logger.Warn("page script failed", map[string]any{"script": s.Name, "error": runErr.Error()})
		}
	}

	p.loadErr = err
	p.logger.Debug("page load finished", map[string]any{"url": url, "scripts": len(scripts)})
	p.report(ProgressFinished)
	if p.onLoad != nil {
		p.onLoad(url, err)
	}
}

func (p *Page) report(progress int) {
	if p.progress != nil {
		p.progress(progress)
	}
}

func (p *Page) runtime() *goja.Runtime {
	if p.vm == nil {
		p.vm = p.newRuntime()
	}
	return p.vm
}

// arm starts the script timeout for one evaluation. The returned func
// disarms it; once it returns no interrupt from this evaluation can land.
func (p *Page) arm(vm *goja.Runtime, d time.Duration) (disarm func()) {
	var (
		mu    sync.Mutex
		armed = true
	)
	timer := time.AfterFunc(d, func() {
		mu.Lock()
		defer mu.Unlock()
		if armed {
			vm.Interrupt(ErrScriptTimeout)
		}
	})
	p.depth++
	return func() {
		p.depth--
		timer.Stop()
		mu.Lock()
		armed = false
		mu.Unlock()
		vm.ClearInterrupt()
	}
}

// run executes src with the script timeout.
func (p *Page) run(name, src string) (goja.Value, error) {
	vm := p.runtime()
	defer p.arm(vm, p.timeout)()

	val, err := vm.RunScript(name, src)
	if err != nil {
		return nil, wrapScriptError(err)
	}
	return val, nil
}

// call invokes a JS function (a timer callback or microtask) with the
// script timeout.
func (p *Page) call(vm *goja.Runtime, fn goja.Callable) {
	defer p.arm(vm, p.timeout)()

	if _, err := fn(goja.Undefined()); err != nil {
		p.logger.Warn("timer callback failed", map[string]any{"error": wrapScriptError(err).Error()})
	}
}

func wrapScriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrScriptTimeout
	}
	return fmt.Errorf("script error: %w", err)
}

// newRuntime builds a fresh runtime with the page globals installed.
func (p *Page) newRuntime() *goja.Runtime {
	vm := goja.New()
	global := vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}
	_ = vm.Set("window", global)
	_ = vm.Set("self", global)

	location := vm.NewObject()
	_ = location.Set("href", p.url)
	_ = vm.Set("location", location)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "debug", "warn", "error"} {
		_ = console.Set(level, p.consoleFunc(level))
	}
	_ = vm.Set("console", console)

	p.installTimers(vm)

	for name, methods := range p.ifaces {
		p.installInterface(vm, name, methods)
	}
	return vm
}

func (p *Page) installInterface(vm *goja.Runtime, name string, methods map[string]func(string)) {
	obj := vm.NewObject()
	for method, fn := range methods {
		_ = obj.Set(method, func(call goja.FunctionCall) goja.Value {
			fn(argString(call.Argument(0)))
			return goja.Undefined()
		})
	}
	_ = vm.Set(name, obj)
}

func (p *Page) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		p.consoleMu.Lock()
		p.console = append(p.console, ConsoleEntry{Level: level, Message: msg, Time: time.Now()})
		p.consoleMu.Unlock()

		fields := map[string]any{"console": level, "url": p.url}
		switch level {
		case "warn":
			p.logger.Warn(msg, fields)
		case "error":
			p.logger.Error(msg, fields)
		default:
			p.logger.Debug(msg, fields)
		}
		return goja.Undefined()
	}
}

func argString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
