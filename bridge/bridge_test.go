package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/jsbridge/ipc"
	"github.com/pithecene-io/jsbridge/log"
	"github.com/pithecene-io/jsbridge/looper"
	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/types"
)

const fakeRuntime = "/* runtime */"

// fakeView records everything the bridge asks of it and checks that it is
// only touched on the controlling goroutine.
type fakeView struct {
	l *looper.Looper

	mu        sync.Mutex
	scripts   []string
	loads     []string
	headers   []map[string]string
	ifaces    map[string]map[string]func(string)
	progress  func(int)
	offLooper int
	evalErr   error
}

func (v *fakeView) check() {
	if !v.l.OnLooper() {
		v.offLooper++
	}
}

func (v *fakeView) EvaluateScript(script string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.scripts = append(v.scripts, script)
	return v.evalErr
}

func (v *fakeView) LoadURL(url string, headers map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.loads = append(v.loads, url)
	v.headers = append(v.headers, headers)
}

func (v *fakeView) AddJavascriptInterface(name string, methods map[string]func(string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	if v.ifaces == nil {
		v.ifaces = map[string]map[string]func(string){}
	}
	v.ifaces[name] = methods
}

func (v *fakeView) SetProgressListener(fn func(int)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.check()
	v.progress = fn
}

// sent decodes every envelope dispatched to the page so far.
func (v *fakeView) sent(t *testing.T) []*types.Envelope {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*types.Envelope
	for _, s := range v.scripts {
		if !strings.HasPrefix(s, ipc.DispatchFunction+"(") {
			continue
		}
		wire := strings.TrimSuffix(strings.TrimPrefix(s, ipc.DispatchFunction+"("), ")")
		env, err := ipc.DecodeEnvelope(wire)
		if err != nil {
			t.Fatalf("bridge dispatched undecodable envelope %q: %v", s, err)
		}
		out = append(out, env)
	}
	return out
}

func (v *fakeView) count(script string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, s := range v.scripts {
		if s == script {
			n++
		}
	}
	return n
}

// notice calls the installed WVJBInterface.notice the way a page would.
func (v *fakeView) notice(t *testing.T, raw string) {
	t.Helper()
	v.mu.Lock()
	fn := v.ifaces[InterfaceName][NoticeMethod]
	v.mu.Unlock()
	if fn == nil {
		t.Fatal("WVJBInterface.notice not installed")
	}
	fn(raw)
}

type recorder struct {
	mu   sync.Mutex
	dirs []types.Direction
}

func (r *recorder) Record(dir types.Direction, _ *types.Envelope) {
	r.mu.Lock()
	r.dirs = append(r.dirs, dir)
	r.mu.Unlock()
}

type harness struct {
	t      *testing.T
	l      *looper.Looper
	view   *fakeView
	bridge *Bridge
	stats  *metrics.Collector
	faults []*Fault
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	l, err := looper.New(log.NewNop())
	if err != nil {
		t.Fatalf("looper.New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	h := &harness{t: t, l: l, view: &fakeView{l: l}, stats: metrics.NewCollector("sess-test", "fake")}
	cfg := Config{
		Logger:        log.NewNop(),
		Collector:     h.stats,
		RuntimeScript: fakeRuntime,
		OnFault:       func(f *Fault) { h.faults = append(h.faults, f) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.bridge = New(h.view, l, cfg)
	h.sync()
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	if err := h.l.Sync(h.t.Context()); err != nil {
		h.t.Fatalf("Sync failed: %v", err)
	}
	// Inbound handling may post follow-up work; settle twice.
	if err := h.l.Sync(h.t.Context()); err != nil {
		h.t.Fatalf("Sync failed: %v", err)
	}
}

func (h *harness) ready() {
	h.t.Helper()
	h.bridge.OnProgressChanged(100)
	h.sync()
}

func TestBridge_InstallsInterfaceOnLooper(t *testing.T) {
	h := newHarness(t, nil)

	if _, ok := h.view.ifaces[InterfaceName][NoticeMethod]; !ok {
		t.Errorf("%s.%s not installed", InterfaceName, NoticeMethod)
	}
	if h.view.progress == nil {
		t.Error("progress listener not installed")
	}
	if h.view.offLooper != 0 {
		t.Errorf("view touched off the controlling goroutine %d times", h.view.offLooper)
	}
}

func TestBridge_BuffersUntilReady(t *testing.T) {
	h := newHarness(t, nil)

	h.bridge.CallHandler("first", "1", func(string) {})
	h.bridge.Notify("second", "2")
	h.sync()

	if got := h.view.sent(t); len(got) != 0 {
		t.Fatalf("dispatched %d envelopes before readiness", len(got))
	}
	if h.bridge.Ready() {
		t.Error("Ready() = true before the page loaded")
	}

	h.bridge.OnProgressChanged(50)
	h.bridge.OnProgressChanged(ReadyProgress)
	h.sync()
	if h.view.count(fakeRuntime) != 0 {
		t.Fatal("runtime injected at or below the ready threshold")
	}

	h.bridge.OnProgressChanged(ReadyProgress + 1)
	h.sync()

	h.view.mu.Lock()
	scripts := append([]string(nil), h.view.scripts...)
	h.view.mu.Unlock()
	if len(scripts) != 3 || scripts[0] != fakeRuntime {
		t.Fatalf("scripts = %q, want runtime followed by two dispatches", scripts)
	}

	sent := h.view.sent(t)
	if types.Value(sent[0].HandlerName) != "first" || types.Value(sent[1].HandlerName) != "second" {
		t.Errorf("drain order = %q, %q, want first, second",
			types.Value(sent[0].HandlerName), types.Value(sent[1].HandlerName))
	}
	if types.Value(sent[0].CallbackID) != "native_cb_1" {
		t.Errorf("CallbackID = %q, want native_cb_1", types.Value(sent[0].CallbackID))
	}
	if sent[1].CallbackID != nil {
		t.Error("notification should not carry a callback id")
	}
	if !h.bridge.Ready() {
		t.Error("Ready() = false after drain")
	}

	h.bridge.OnProgressChanged(100)
	h.sync()
	if n := h.view.count(fakeRuntime); n != 1 {
		t.Errorf("runtime injected %d times for one page, want 1", n)
	}

	s := h.stats.Snapshot()
	if s.MessagesBuffered != 2 || s.MessagesDrained != 2 {
		t.Errorf("buffered/drained = %d/%d, want 2/2", s.MessagesBuffered, s.MessagesDrained)
	}
	if s.RuntimeInjections != 1 {
		t.Errorf("RuntimeInjections = %d, want 1", s.RuntimeInjections)
	}
}

func TestBridge_CallAfterReadyDispatchesDirectly(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.CallHandler("callJs", `{"a":0}`, nil)
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 1 {
		t.Fatalf("dispatched %d envelopes, want 1", len(sent))
	}
	if types.Value(sent[0].Data) != `{"a":0}` {
		t.Errorf("Data = %q, want %q", types.Value(sent[0].Data), `{"a":0}`)
	}
}

func TestBridge_EmptyHandlerNameDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.CallHandler("", "x", func(string) { t.Error("callback must not run") })
	h.sync()

	if got := h.view.sent(t); len(got) != 0 {
		t.Errorf("dispatched %d envelopes for an empty name", len(got))
	}
	if h.bridge.PendingCallbacks() != 0 {
		t.Errorf("PendingCallbacks() = %d, want 0", h.bridge.PendingCallbacks())
	}
}

func TestBridge_ReplyResolvesCallbackOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	var got []string
	h.bridge.CallHandler("callJs", "q", func(data string) { got = append(got, data) })
	h.sync()
	if h.bridge.PendingCallbacks() != 1 {
		t.Fatalf("PendingCallbacks() = %d, want 1", h.bridge.PendingCallbacks())
	}

	h.view.notice(t, `{"responseId":"native_cb_1","responseData":"answer"}`)
	h.view.notice(t, `{"responseId":"native_cb_1","responseData":"again"}`)
	h.sync()

	if len(got) != 1 || got[0] != "answer" {
		t.Errorf("callback saw %v, want [answer]", got)
	}
	if h.bridge.PendingCallbacks() != 0 {
		t.Errorf("PendingCallbacks() = %d, want 0", h.bridge.PendingCallbacks())
	}
	if len(h.faults) != 1 || h.faults[0].Kind != FaultUnknownResponse {
		t.Fatalf("faults = %v, want one unknown_response", h.faults)
	}
}

func TestBridge_InboundCallRepliesAndBypassesQueue(t *testing.T) {
	h := newHarness(t, nil)

	h.bridge.RegisterHandler("callNative", func(data string, reply Responder) {
		reply("echo:" + data)
	})

	// The page can call in before the host sees readiness; the reply must not
	// wait in the startup queue.
	h.view.notice(t, `{"handlerName":"callNative","data":"hi","callbackId":"js_cb_1"}`)
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 1 {
		t.Fatalf("dispatched %d envelopes, want 1 reply", len(sent))
	}
	reply := sent[0]
	if !reply.IsReply() {
		t.Fatal("dispatched envelope is not a reply")
	}
	if types.Value(reply.ResponseID) != "js_cb_1" {
		t.Errorf("ResponseID = %q, want js_cb_1", types.Value(reply.ResponseID))
	}
	if types.Value(reply.ResponseData) != "echo:hi" {
		t.Errorf("ResponseData = %q, want echo:hi", types.Value(reply.ResponseData))
	}
	if reply.HandlerName != nil {
		t.Error("reply should not carry a handler name")
	}
}

func TestBridge_ResponderWithoutCallbackIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	called := false
	h.bridge.RegisterHandler("fire", func(_ string, reply Responder) {
		called = true
		reply("ignored")
	})
	h.view.notice(t, `{"handlerName":"fire"}`)
	h.sync()

	if !called {
		t.Fatal("handler did not run")
	}
	if got := h.view.sent(t); len(got) != 0 {
		t.Errorf("dispatched %d envelopes, want none", len(got))
	}
}

func TestBridge_ResponderRepliesAtMostOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.RegisterHandler("twice", func(_ string, reply Responder) {
		reply("one")
		reply("two")
	})
	h.view.notice(t, `{"handlerName":"twice","callbackId":"js_cb_9"}`)
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 1 || types.Value(sent[0].ResponseData) != "one" {
		t.Errorf("replies = %d, want exactly the first", len(sent))
	}
}

func TestBridge_AsyncReplyFromOtherGoroutine(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	done := make(chan struct{})
	h.bridge.RegisterHandler("slow", func(data string, reply Responder) {
		go func() {
			defer close(done)
			reply("later:" + data)
		}()
	})
	h.view.notice(t, `{"handlerName":"slow","data":"x","callbackId":"js_cb_2"}`)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async reply never sent")
	}
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 1 || types.Value(sent[0].ResponseData) != "later:x" {
		t.Fatalf("sent = %d envelopes, want the async reply", len(sent))
	}
	if h.view.offLooper != 0 {
		t.Errorf("view touched off the controlling goroutine %d times", h.view.offLooper)
	}
}

func TestBridge_Faults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind FaultKind
	}{
		{"malformed", `{"handlerName":`, FaultMalformedMessage},
		{"empty", ``, FaultMalformedMessage},
		{"not an object", `[1,2]`, FaultMalformedMessage},
		{"unknown handler", `{"handlerName":"nope","callbackId":"js_cb_1"}`, FaultUnknownHandler},
		{"no kind", `{"data":"x"}`, FaultUnknownHandler},
		{"unknown response", `{"responseId":"native_cb_77"}`, FaultUnknownResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ready()

			h.view.notice(t, tt.raw)
			h.sync()

			if len(h.faults) != 1 {
				t.Fatalf("got %d faults, want 1", len(h.faults))
			}
			if !IsFault(h.faults[0], tt.kind) {
				t.Errorf("fault = %v, want kind %v", h.faults[0], tt.kind)
			}
			if got := h.view.sent(t); len(got) != 0 {
				t.Errorf("dispatched %d envelopes for a dropped message", len(got))
			}
		})
	}
}

func TestBridge_MalformedFaultWrapsDecodeError(t *testing.T) {
	h := newHarness(t, nil)
	h.view.notice(t, "not json")
	h.sync()

	if len(h.faults) != 1 {
		t.Fatalf("got %d faults, want 1", len(h.faults))
	}
	if !ipc.IsMalformed(h.faults[0]) {
		t.Errorf("fault %v should unwrap to an ipc.DecodeError", h.faults[0])
	}
	if h.stats.Snapshot().MalformedMessages != 1 {
		t.Errorf("MalformedMessages = %d, want 1", h.stats.Snapshot().MalformedMessages)
	}
}

func TestBridge_HandlerPanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.RegisterHandler("explode", func(_ string, reply Responder) {
		reply("sent before panic")
		panic("boom")
	})
	h.bridge.RegisterHandler("after", func(_ string, reply Responder) { reply("still alive") })

	h.view.notice(t, `{"handlerName":"explode","callbackId":"js_cb_1"}`)
	h.view.notice(t, `{"handlerName":"after","callbackId":"js_cb_2"}`)
	h.sync()

	if len(h.faults) != 1 || h.faults[0].Kind != FaultHandlerFault {
		t.Fatalf("faults = %v, want one handler_fault", h.faults)
	}
	var pe *PanicError
	if !errors.As(h.faults[0], &pe) || pe.Value != "boom" {
		t.Errorf("fault should wrap the panic value, got %v", h.faults[0])
	}

	sent := h.view.sent(t)
	if len(sent) != 2 {
		t.Fatalf("dispatched %d replies, want 2", len(sent))
	}
	if types.Value(sent[0].ResponseData) != "sent before panic" {
		t.Errorf("reply before panic = %q, want it delivered", types.Value(sent[0].ResponseData))
	}
}

func TestBridge_HasNativeMethodBuiltin(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.view.notice(t, `{"handlerName":"_hasNativeMethod","data":"missing","callbackId":"js_cb_1"}`)
	h.sync()
	h.bridge.RegisterHandler("missing", func(string, Responder) {})
	h.view.notice(t, `{"handlerName":"_hasNativeMethod","data":"missing","callbackId":"js_cb_2"}`)
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 2 {
		t.Fatalf("dispatched %d replies, want 2", len(sent))
	}
	if types.Value(sent[0].ResponseID) != "js_cb_1" || types.Value(sent[0].ResponseData) != "false" {
		t.Errorf("_hasNativeMethod(missing) before register = %q, want %q", types.Value(sent[0].ResponseData), "false")
	}
	if types.Value(sent[1].ResponseID) != "js_cb_2" || types.Value(sent[1].ResponseData) != "true" {
		t.Errorf("_hasNativeMethod(missing) after register = %q, want %q", types.Value(sent[1].ResponseData), "true")
	}
}

func TestBridge_CallHandlerEmptyDataIsSent(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.CallHandler("withEmpty", "", func(string) {})
	h.bridge.CallHandlerNoData("withoutData", func(string) {})
	h.bridge.Notify("notifyEmpty", "")
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != 3 {
		t.Fatalf("dispatched %d envelopes, want 3", len(sent))
	}
	if sent[0].Data == nil || *sent[0].Data != "" {
		t.Errorf("CallHandler data = %v, want empty string", sent[0].Data)
	}
	if sent[1].Data != nil {
		t.Errorf("CallHandlerNoData data = %q, want absent", *sent[1].Data)
	}
	if sent[2].Data == nil || *sent[2].Data != "" {
		t.Errorf("Notify data = %v, want empty string", sent[2].Data)
	}

	h.view.mu.Lock()
	defer h.view.mu.Unlock()
	var wire string
	for _, s := range h.view.scripts {
		if strings.Contains(s, "withEmpty") {
			wire = s
		}
	}
	if !strings.Contains(wire, `"data":""`) {
		t.Errorf("dispatch script = %q, want it to carry \"data\":\"\"", wire)
	}
}

func TestBridge_HasJavascriptMethod(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{`"true"`, true},
		{`true`, true},
		{`"false"`, false},
		{`"yes"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ready()

			var got *bool
			h.bridge.HasJavascriptMethod("callJs", func(ok bool) { got = &ok })
			h.sync()

			sent := h.view.sent(t)
			if len(sent) != 1 || types.Value(sent[0].HandlerName) != HasJavascriptMethod {
				t.Fatalf("expected a %s call", HasJavascriptMethod)
			}
			if types.Value(sent[0].Data) != "callJs" {
				t.Errorf("Data = %q, want callJs", types.Value(sent[0].Data))
			}

			h.view.notice(t, `{"responseId":"`+types.Value(sent[0].CallbackID)+`","responseData":`+tt.reply+`}`)
			h.sync()

			if got == nil {
				t.Fatal("callback did not run")
			}
			if *got != tt.want {
				t.Errorf("HasJavascriptMethod = %v, want %v", *got, tt.want)
			}
		})
	}
}

func TestBridge_LoadURLReinjectsRuntime(t *testing.T) {
	h := newHarness(t, nil)
	h.ready()

	h.bridge.LoadURLWithHeaders("https://example.test/next", map[string]string{"X-Token": "t"})
	h.bridge.OnProgressChanged(90)
	h.sync()

	if n := h.view.count(fakeRuntime); n != 2 {
		t.Errorf("runtime injected %d times across two pages, want 2", n)
	}
	if len(h.view.loads) != 1 || h.view.loads[0] != "https://example.test/next" {
		t.Errorf("loads = %v", h.view.loads)
	}
	if h.view.headers[0]["X-Token"] != "t" {
		t.Errorf("headers = %v, want X-Token", h.view.headers[0])
	}

	h.bridge.LoadURL("about:blank")
	h.sync()
	if h.view.headers[1] != nil {
		t.Errorf("LoadURL headers = %v, want nil", h.view.headers[1])
	}
	if h.stats.Snapshot().Navigations != 2 {
		t.Errorf("Navigations = %d, want 2", h.stats.Snapshot().Navigations)
	}
}

func TestBridge_MarkReady(t *testing.T) {
	h := newHarness(t, nil)
	h.bridge.Notify("early", "")
	h.bridge.MarkReady()
	h.sync()

	if h.view.count(fakeRuntime) != 0 {
		t.Error("MarkReady should not inject the runtime")
	}
	if got := h.view.sent(t); len(got) != 1 {
		t.Errorf("dispatched %d envelopes, want 1", len(got))
	}
}

func TestBridge_CallbackTTL(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.CallbackTTL = time.Minute })
	h.ready()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.bridge.callbacks.now = func() time.Time { return now }

	h.bridge.CallHandler("slow", "", func(string) { t.Error("expired callback must not run") })
	h.sync()
	now = now.Add(2 * time.Minute)

	h.view.notice(t, `{"responseId":"native_cb_1","responseData":"late"}`)
	h.sync()

	if len(h.faults) != 2 {
		t.Fatalf("faults = %v, want expiry then unknown response", h.faults)
	}
	if h.faults[0].Kind != FaultCallbackExpired || h.faults[1].Kind != FaultUnknownResponse {
		t.Errorf("fault kinds = %v, %v", h.faults[0].Kind, h.faults[1].Kind)
	}
	if h.stats.Snapshot().CallbacksExpired != 1 {
		t.Errorf("CallbacksExpired = %d, want 1", h.stats.Snapshot().CallbacksExpired)
	}
}

func TestBridge_RecordsBothDirections(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, func(c *Config) { c.Recorder = rec })
	h.ready()

	h.bridge.CallHandler("callJs", "", func(string) {})
	h.sync()
	h.view.notice(t, `{"responseId":"native_cb_1","responseData":"ok"}`)
	h.sync()

	if len(rec.dirs) != 2 || rec.dirs[0] != types.DirectionOutbound || rec.dirs[1] != types.DirectionInbound {
		t.Errorf("recorded directions = %v, want [outbound inbound]", rec.dirs)
	}
}

func TestBridge_ScriptErrorIsCounted(t *testing.T) {
	h := newHarness(t, nil)
	h.view.evalErr = errors.New("ReferenceError")
	h.bridge.EvaluateScript("nope()")
	h.sync()

	if h.stats.Snapshot().ScriptErrors != 1 {
		t.Errorf("ScriptErrors = %d, want 1", h.stats.Snapshot().ScriptErrors)
	}
}

func TestBridge_ConcurrentCallersKeepPerGoroutineOrder(t *testing.T) {
	h := newHarness(t, nil)

	const callers = 6
	const perCaller = 40
	var wg sync.WaitGroup
	for c := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perCaller {
				h.bridge.Notify(string(rune('a'+c)), strings.Repeat("x", i+1))
			}
			if c%2 == 0 {
				h.bridge.OnProgressChanged(100)
			}
		}()
	}
	wg.Wait()
	h.sync()

	sent := h.view.sent(t)
	if len(sent) != callers*perCaller {
		t.Fatalf("dispatched %d envelopes, want %d", len(sent), callers*perCaller)
	}
	last := map[string]int{}
	for _, env := range sent {
		name := types.Value(env.HandlerName)
		n := len(types.Value(env.Data))
		if n <= last[name] {
			t.Fatalf("caller %s: message %d delivered after %d", name, n, last[name])
		}
		last[name] = n
	}
	if h.view.offLooper != 0 {
		t.Errorf("view touched off the controlling goroutine %d times", h.view.offLooper)
	}
}

func TestFault_Error(t *testing.T) {
	f := &Fault{Kind: FaultUnknownHandler, Handler: "nope", ID: "js_cb_1"}
	msg := f.Error()
	for _, want := range []string{"unknown_handler", `"nope"`, `"js_cb_1"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if IsFault(errors.New("x"), FaultUnknownHandler) {
		t.Error("IsFault should be false for plain errors")
	}
}
