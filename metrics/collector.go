// Package metrics provides per-session bridge counters.
//
// The Collector accumulates counters during a single bridge session. It is a
// leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all bridge metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Outbound
	CallsSent          int64 `json:"calls_sent" yaml:"calls_sent"`
	NotificationsSent  int64 `json:"notifications_sent" yaml:"notifications_sent"`
	RepliesSent        int64 `json:"replies_sent" yaml:"replies_sent"`
	MessagesBuffered   int64 `json:"messages_buffered" yaml:"messages_buffered"`
	MessagesDrained    int64 `json:"messages_drained" yaml:"messages_drained"`
	MessagesDispatched int64 `json:"messages_dispatched" yaml:"messages_dispatched"`

	// Inbound
	InboundMessages   int64 `json:"inbound_messages" yaml:"inbound_messages"`
	CallsHandled      int64 `json:"calls_handled" yaml:"calls_handled"`
	RepliesResolved   int64 `json:"replies_resolved" yaml:"replies_resolved"`
	MalformedMessages int64 `json:"malformed_messages" yaml:"malformed_messages"`
	UnknownHandlers   int64 `json:"unknown_handlers" yaml:"unknown_handlers"`
	UnknownResponses  int64 `json:"unknown_responses" yaml:"unknown_responses"`
	HandlerFaults     int64 `json:"handler_faults" yaml:"handler_faults"`
	CallbacksExpired  int64 `json:"callbacks_expired" yaml:"callbacks_expired"`
	// UnknownByHandler counts dropped calls per unregistered handler name.
	UnknownByHandler map[string]int64 `json:"unknown_by_handler,omitempty" yaml:"unknown_by_handler,omitempty"`

	// View
	ScriptsEvaluated  int64 `json:"scripts_evaluated" yaml:"scripts_evaluated"`
	ScriptErrors      int64 `json:"script_errors" yaml:"script_errors"`
	Navigations       int64 `json:"navigations" yaml:"navigations"`
	RuntimeInjections int64 `json:"runtime_injections" yaml:"runtime_injections"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success" yaml:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure" yaml:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	SessionID string `json:"session_id" yaml:"session_id"`
	View      string `json:"view" yaml:"view"`
}

// Collector accumulates metrics during a single bridge session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	callsSent          int64
	notificationsSent  int64
	repliesSent        int64
	messagesBuffered   int64
	messagesDrained    int64
	messagesDispatched int64

	inboundMessages   int64
	callsHandled      int64
	repliesResolved   int64
	malformedMessages int64
	unknownHandlers   int64
	unknownResponses  int64
	handlerFaults     int64
	callbacksExpired  int64
	unknownByHandler  map[string]int64

	scriptsEvaluated  int64
	scriptErrors      int64
	navigations       int64
	runtimeInjections int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	sessionID string
	view      string
}

// NewCollector creates a Collector with dimension labels.
// view names the WebView implementation (e.g. "goja").
func NewCollector(sessionID, view string) *Collector {
	return &Collector{
		unknownByHandler: make(map[string]int64),
		sessionID:        sessionID,
		view:             view,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Outbound ---

// IncCallSent records an outbound call that expects a reply.
func (c *Collector) IncCallSent() {
	if c == nil {
		return
	}
	c.add(&c.callsSent, 1)
}

// IncNotificationSent records an outbound call that expects no reply.
func (c *Collector) IncNotificationSent() {
	if c == nil {
		return
	}
	c.add(&c.notificationsSent, 1)
}

// IncReplySent records a reply from a host handler.
func (c *Collector) IncReplySent() {
	if c == nil {
		return
	}
	c.add(&c.repliesSent, 1)
}

// IncMessageBuffered records an envelope held by the startup queue.
func (c *Collector) IncMessageBuffered() {
	if c == nil {
		return
	}
	c.add(&c.messagesBuffered, 1)
}

// AddMessagesDrained records envelopes released by the startup queue drain.
func (c *Collector) AddMessagesDrained(n int) {
	if c == nil {
		return
	}
	c.add(&c.messagesDrained, int64(n))
}

// IncMessageDispatched records an envelope delivered to the script context.
func (c *Collector) IncMessageDispatched() {
	if c == nil {
		return
	}
	c.add(&c.messagesDispatched, 1)
}

// --- Inbound ---

// IncInboundMessage records a raw message received from the script context.
func (c *Collector) IncInboundMessage() {
	if c == nil {
		return
	}
	c.add(&c.inboundMessages, 1)
}

// IncCallHandled records an inbound call routed to a host handler.
func (c *Collector) IncCallHandled() {
	if c == nil {
		return
	}
	c.add(&c.callsHandled, 1)
}

// IncReplyResolved records an inbound reply matched to a pending callback.
func (c *Collector) IncReplyResolved() {
	if c == nil {
		return
	}
	c.add(&c.repliesResolved, 1)
}

// IncMalformedMessage records an inbound message that failed to decode.
func (c *Collector) IncMalformedMessage() {
	if c == nil {
		return
	}
	c.add(&c.malformedMessages, 1)
}

// IncUnknownHandler records an inbound call for an unregistered name.
func (c *Collector) IncUnknownHandler(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unknownHandlers++
	c.unknownByHandler[name]++
	c.mu.Unlock()
}

// IncUnknownResponse records a reply with no pending callback.
func (c *Collector) IncUnknownResponse() {
	if c == nil {
		return
	}
	c.add(&c.unknownResponses, 1)
}

// IncHandlerFault records a panic recovered from a host handler or callback.
func (c *Collector) IncHandlerFault() {
	if c == nil {
		return
	}
	c.add(&c.handlerFaults, 1)
}

// AddCallbacksExpired records pending callbacks removed by TTL expiry.
func (c *Collector) AddCallbacksExpired(n int) {
	if c == nil {
		return
	}
	c.add(&c.callbacksExpired, int64(n))
}

// --- View ---

// IncScriptEvaluated records a script evaluation on the view.
func (c *Collector) IncScriptEvaluated() {
	if c == nil {
		return
	}
	c.add(&c.scriptsEvaluated, 1)
}

// IncScriptError records a script evaluation that failed.
func (c *Collector) IncScriptError() {
	if c == nil {
		return
	}
	c.add(&c.scriptErrors, 1)
}

// IncNavigation records a page load request.
func (c *Collector) IncNavigation() {
	if c == nil {
		return
	}
	c.add(&c.navigations, 1)
}

// IncRuntimeInjection records an injection of the script-side runtime.
func (c *Collector) IncRuntimeInjection() {
	if c == nil {
		return
	}
	c.add(&c.runtimeInjections, 1)
}

// --- Lode / Storage ---

// IncLodeWriteSuccess records a successful archive write.
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.lodeWriteSuccess, 1)
}

// IncLodeWriteFailure records a failed archive write.
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.lodeWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unknown := make(map[string]int64, len(c.unknownByHandler))
	for k, v := range c.unknownByHandler {
		unknown[k] = v
	}

	return Snapshot{
		CallsSent:          c.callsSent,
		NotificationsSent:  c.notificationsSent,
		RepliesSent:        c.repliesSent,
		MessagesBuffered:   c.messagesBuffered,
		MessagesDrained:    c.messagesDrained,
		MessagesDispatched: c.messagesDispatched,

		InboundMessages:   c.inboundMessages,
		CallsHandled:      c.callsHandled,
		RepliesResolved:   c.repliesResolved,
		MalformedMessages: c.malformedMessages,
		UnknownHandlers:   c.unknownHandlers,
		UnknownResponses:  c.unknownResponses,
		HandlerFaults:     c.handlerFaults,
		CallbacksExpired:  c.callbacksExpired,
		UnknownByHandler:  unknown,

		ScriptsEvaluated:  c.scriptsEvaluated,
		ScriptErrors:      c.scriptErrors,
		Navigations:       c.navigations,
		RuntimeInjections: c.runtimeInjections,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		SessionID: c.sessionID,
		View:      c.view,
	}
}
