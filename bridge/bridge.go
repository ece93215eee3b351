// Package bridge implements a bidirectional call bridge between Go and a
// script context hosted in a WebView.
//
// Either side can invoke named handlers on the other and optionally receive
// one reply. Outbound traffic is buffered until the script-side runtime is
// injected, then flushed once in order. All interaction with the view happens
// on the Scheduler's controlling goroutine; public methods are safe to call
// from any goroutine and never block.
package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/jsbridge/assets"
	"github.com/pithecene-io/jsbridge/ipc"
	"github.com/pithecene-io/jsbridge/log"
	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/types"
)

// Wire names shared with the script-side runtime.
const (
	// InterfaceName is the JS interface the page calls into.
	InterfaceName = "WVJBInterface"
	// NoticeMethod is the InterfaceName method that carries script -> host messages.
	NoticeMethod = "notice"
	// HostCallbackPrefix prefixes callback ids generated by the host.
	HostCallbackPrefix = "native_cb_"
	// HasNativeMethod is the built-in host handler answering "is name registered".
	HasNativeMethod = "_hasNativeMethod"
	// HasJavascriptMethod is the script-side counterpart of HasNativeMethod.
	HasJavascriptMethod = "_hasJavascriptMethod"
	// ReadyProgress is the load progress above which the runtime is injected.
	ReadyProgress = 80
)

// Config configures a Bridge. The zero value is usable.
type Config struct {
	// Logger receives dispatch diagnostics. Nil discards.
	Logger *log.Logger
	// Collector receives counters. Nil disables metrics.
	Collector *metrics.Collector
	// Recorder observes every envelope crossing the bridge. Optional.
	Recorder Recorder
	// RuntimeScript is injected when the page is ready.
	// Defaults to the embedded WebViewJavascriptBridge.js.
	RuntimeScript string
	// OnFault receives every fault after it is logged. Optional.
	// Called on the controlling goroutine.
	OnFault func(*Fault)
	// CallbackTTL expires pending callbacks older than this. Zero keeps them
	// until answered.
	CallbackTTL time.Duration
}

// Bridge pairs one host endpoint with one script endpoint.
type Bridge struct {
	view  WebView
	sched Scheduler

	logger    *log.Logger
	collector *metrics.Collector
	recorder  Recorder
	onFault   func(*Fault)
	runtime   string
	ttl       time.Duration

	callbacks *CallbackRegistry
	handlers  *HandlerRegistry
	queue     *StartupQueue

	// injected is owned by the controlling goroutine.
	injected bool
	ready    atomic.Bool
}

// New creates a bridge on view. The JS interface and progress listener are
// installed through sched, so New may be called from any goroutine.
func New(view WebView, sched Scheduler, cfg Config) *Bridge {
	b := &Bridge{
		view:      view,
		sched:     sched,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		recorder:  cfg.Recorder,
		onFault:   cfg.OnFault,
		runtime:   cfg.RuntimeScript,
		ttl:       cfg.CallbackTTL,
		callbacks: NewCallbackRegistry(HostCallbackPrefix),
		handlers:  NewHandlerRegistry(),
		queue:     NewStartupQueue(),
	}
	if b.runtime == "" {
		b.runtime = assets.Runtime()
	}

	b.handlers.Register(HasNativeMethod, func(data string, reply Responder) {
		reply(strconv.FormatBool(b.handlers.Has(data)))
	})

	sched.Submit(func() {
		view.AddJavascriptInterface(InterfaceName, map[string]func(string){
			NoticeMethod: b.Receive,
		})
		view.SetProgressListener(b.OnProgressChanged)
	})
	return b
}

// RegisterHandler makes h callable from the page under name, replacing any
// previous handler. Empty names and nil handlers are ignored.
func (b *Bridge) RegisterHandler(name string, h Handler) bool {
	return b.handlers.Register(name, h)
}

// Handlers returns the registered handler names, sorted.
func (b *Bridge) Handlers() []string {
	return b.handlers.Names()
}

// CallHandler invokes a script-side handler. When cb is non-nil it is called
// with the reply data, at most once. Before the page is ready the call is
// buffered. Calls with an empty name are dropped.
func (b *Bridge) CallHandler(name, data string, cb ResponseCallback) {
	b.Send(name, &data, cb)
}

// CallHandlerNoData invokes a script-side handler with the data field absent.
func (b *Bridge) CallHandlerNoData(name string, cb ResponseCallback) {
	b.Send(name, nil, cb)
}

// Send delivers a call to the script. A nil data omits the field; a nil cb
// makes it a notification.
func (b *Bridge) Send(name string, data *string, cb ResponseCallback) {
	if name == "" {
		b.logger.Debug("dropping call without handler name", nil)
		return
	}

	var callbackID string
	if cb != nil {
		callbackID = b.callbacks.Register(cb)
		b.collector.IncCallSent()
	} else {
		b.collector.IncNotificationSent()
	}

	if b.queue.Send(types.NewCall(name, data, callbackID), b.dispatch) {
		b.collector.IncMessageBuffered()
	}
}

// Notify invokes a script-side handler without expecting a reply.
func (b *Bridge) Notify(name, data string) {
	b.CallHandler(name, data, nil)
}

// HasJavascriptMethod asks the page whether a handler named name is
// registered and reports the answer to fn.
func (b *Bridge) HasJavascriptMethod(name string, fn func(bool)) {
	b.CallHandler(HasJavascriptMethod, name, func(data string) {
		if fn != nil {
			fn(parseBool(data))
		}
	})
}

// EvaluateScript runs script in the page on the controlling goroutine.
func (b *Bridge) EvaluateScript(script string) {
	b.sched.Submit(func() { b.evaluate(script) })
}

// LoadURL navigates the view to url.
func (b *Bridge) LoadURL(url string) {
	b.LoadURLWithHeaders(url, nil)
}

// LoadURLWithHeaders navigates the view to url with extra request headers.
// The new page gets the runtime injected again once it is ready.
func (b *Bridge) LoadURLWithHeaders(url string, headers map[string]string) {
	b.sched.Submit(func() {
		b.injected = false
		b.collector.IncNavigation()
		b.logger.Debug("loading page", map[string]any{"url": url, "headers": len(headers)})
		b.view.LoadURL(url, headers)
	})
}

// OnProgressChanged is the view's load-progress callback. The first report
// above ReadyProgress for a page injects the runtime and drains the startup
// queue.
func (b *Bridge) OnProgressChanged(progress int) {
	b.sched.Submit(func() {
		if progress <= ReadyProgress || b.injected {
			return
		}
		b.injected = true
		b.collector.IncRuntimeInjection()
		b.evaluate(b.runtime)
		b.drain()
	})
}

// MarkReady drains the startup queue without waiting for load progress, for
// pages that bundle the runtime themselves.
func (b *Bridge) MarkReady() {
	b.sched.Submit(b.drain)
}

// Ready reports whether the startup queue has drained.
func (b *Bridge) Ready() bool {
	return b.ready.Load()
}

// Receive accepts one raw message from the page. It is what
// WVJBInterface.notice calls, and always defers handling to the controlling
// goroutine.
func (b *Bridge) Receive(raw string) {
	b.collector.IncInboundMessage()
	if !b.sched.Post(func() { b.handleMessage(raw) }) {
		b.logger.Debug("dropping inbound message after shutdown", nil)
	}
}

// PendingCallbacks returns the number of calls still awaiting a reply.
func (b *Bridge) PendingCallbacks() int {
	return b.callbacks.Len()
}

// PendingIDs returns the callback ids still awaiting a reply.
func (b *Bridge) PendingIDs() []string {
	return b.callbacks.IDs()
}

func (b *Bridge) drain() {
	n, ok := b.queue.Drain(b.dispatch)
	if !ok {
		return
	}
	b.ready.Store(true)
	b.collector.AddMessagesDrained(n)
	b.logger.Info("bridge ready", map[string]any{
		"drained":  n,
		"handlers": len(b.handlers.Names()),
	})
}

// dispatch delivers env to the page.
func (b *Bridge) dispatch(env *types.Envelope) {
	wire, err := ipc.EncodeEnvelope(env)
	if err != nil {
		b.logger.Error("failed to encode envelope", map[string]any{"error": err.Error()})
		return
	}
	b.record(types.DirectionOutbound, env)
	b.collector.IncMessageDispatched()
	b.EvaluateScript(ipc.DispatchScript(wire))
}

func (b *Bridge) evaluate(script string) {
	b.collector.IncScriptEvaluated()
	if err := b.view.EvaluateScript(script); err != nil {
		b.collector.IncScriptError()
		b.logger.Warn("script evaluation failed", map[string]any{"error": err.Error()})
	}
}

func (b *Bridge) handleMessage(raw string) {
	b.expire()

	env, err := ipc.DecodeEnvelope(raw)
	if err != nil {
		b.fault(&Fault{Kind: FaultMalformedMessage, Err: err})
		return
	}
	b.record(types.DirectionInbound, env)

	if env.IsReply() {
		b.resolve(*env.ResponseID, types.Value(env.ResponseData))
		return
	}

	name := types.Value(env.HandlerName)
	h, ok := b.handlers.Lookup(name)
	if !ok {
		b.fault(&Fault{Kind: FaultUnknownHandler, Handler: name, ID: types.Value(env.CallbackID)})
		return
	}

	b.collector.IncCallHandled()
	reply := b.responder(env.CallbackID, name)
	b.invoke(name, types.Value(env.CallbackID), func() { h(types.Value(env.Data), reply) })
}

func (b *Bridge) resolve(id, data string) {
	cb, ok := b.callbacks.Take(id)
	if !ok {
		b.fault(&Fault{Kind: FaultUnknownResponse, ID: id})
		return
	}
	b.collector.IncReplyResolved()
	b.invoke("", id, func() { cb(data) })
}

// responder builds the reply function handed to a host handler. Replies go
// straight to dispatch and skip the startup queue.
func (b *Bridge) responder(callbackID *string, handler string) Responder {
	if callbackID == nil {
		return func(string) {}
	}
	id := *callbackID
	var replied atomic.Bool
	return func(data string) {
		if !replied.CompareAndSwap(false, true) {
			b.logger.Debug("dropping duplicate reply", map[string]any{"handler": handler, "id": id})
			return
		}
		b.collector.IncReplySent()
		b.dispatch(types.NewReply(id, data))
	}
}

func (b *Bridge) invoke(handler, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.fault(&Fault{Kind: FaultHandlerFault, Handler: handler, ID: id, Err: &PanicError{Value: r}})
		}
	}()
	fn()
}

func (b *Bridge) expire() {
	expired := b.callbacks.Expire(b.ttl)
	if len(expired) == 0 {
		return
	}
	b.collector.AddCallbacksExpired(len(expired))
	for _, id := range expired {
		b.fault(&Fault{Kind: FaultCallbackExpired, ID: id, Err: fmt.Errorf("no reply within %s", b.ttl)})
	}
}

func (b *Bridge) fault(f *Fault) {
	fields := map[string]any{"kind": f.Kind.String()}
	if f.Handler != "" {
		fields["handler"] = f.Handler
	}
	if f.ID != "" {
		fields["id"] = f.ID
	}
	if f.Err != nil {
		fields["error"] = f.Err.Error()
	}

	switch f.Kind {
	case FaultMalformedMessage:
		b.collector.IncMalformedMessage()
		b.logger.Warn("dropping malformed message", fields)
	case FaultUnknownHandler:
		b.collector.IncUnknownHandler(f.Handler)
		b.logger.Debug("dropping call for unknown handler", fields)
	case FaultUnknownResponse:
		b.collector.IncUnknownResponse()
		b.logger.Debug("dropping reply for unknown callback", fields)
	case FaultHandlerFault:
		b.collector.IncHandlerFault()
		b.logger.Error("handler panicked", fields)
	case FaultCallbackExpired:
		b.logger.Warn("callback expired", fields)
	}

	if b.onFault != nil {
		b.onFault(f)
	}
}

func (b *Bridge) record(dir types.Direction, env *types.Envelope) {
	if b.recorder != nil {
		b.recorder.Record(dir, env)
	}
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}
