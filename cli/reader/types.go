// Package reader is the read side of the jsbridge CLI.
//
// Commands that only look at past sessions (inspect, stats) go through this
// package. It reads transcript files written by `jsbridge run --transcript`
// and sessions archived to Lode, and never touches a live bridge.
package reader

import (
	"strconv"

	"github.com/pithecene-io/jsbridge/transcript"
	"github.com/pithecene-io/jsbridge/types"
)

// InspectTranscriptResponse is the payload of `jsbridge inspect`.
type InspectTranscriptResponse struct {
	Source    string                   `json:"source" yaml:"source"`
	SessionID string                   `json:"session_id" yaml:"session_id"`
	Outcome   string                   `json:"outcome" yaml:"outcome"`
	Summary   transcript.Summary       `json:"summary" yaml:"summary"`
	Records   []types.TranscriptRecord `json:"records" yaml:"records"`
}

// Columns implements render.Tabular.
func (r *InspectTranscriptResponse) Columns() []string {
	return []string{"SEQ", "DIRECTION", "KIND", "HANDLER", "CALLBACK", "RESPONSE", "DATA"}
}

// Rows implements render.Tabular. Payloads are cut to keep rows on one line.
func (r *InspectTranscriptResponse) Rows() [][]string {
	rows := make([][]string, 0, len(r.Records))
	for i := range r.Records {
		rec := &r.Records[i]
		env := &rec.Envelope
		data := types.Value(env.Data)
		if env.IsReply() {
			data = types.Value(env.ResponseData)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.Seq, 10),
			string(rec.Direction),
			rec.Kind(),
			types.Value(env.HandlerName),
			types.Value(env.CallbackID),
			types.Value(env.ResponseID),
			Truncate(data, 48),
		})
	}
	return rows
}

// MetricsSnapshot is an archived metrics row for one session.
type MetricsSnapshot struct {
	Ts        string `json:"ts" yaml:"ts"`
	SessionID string `json:"session_id" yaml:"session_id"`
	Day       string `json:"day" yaml:"day"`
	View      string `json:"view" yaml:"view"`

	// Outbound
	CallsSent          int64 `json:"calls_sent" yaml:"calls_sent"`
	NotificationsSent  int64 `json:"notifications_sent" yaml:"notifications_sent"`
	RepliesSent        int64 `json:"replies_sent" yaml:"replies_sent"`
	MessagesBuffered   int64 `json:"messages_buffered" yaml:"messages_buffered"`
	MessagesDrained    int64 `json:"messages_drained" yaml:"messages_drained"`
	MessagesDispatched int64 `json:"messages_dispatched" yaml:"messages_dispatched"`

	// Inbound
	InboundMessages   int64            `json:"inbound_messages" yaml:"inbound_messages"`
	CallsHandled      int64            `json:"calls_handled" yaml:"calls_handled"`
	RepliesResolved   int64            `json:"replies_resolved" yaml:"replies_resolved"`
	MalformedMessages int64            `json:"malformed_messages" yaml:"malformed_messages"`
	UnknownHandlers   int64            `json:"unknown_handlers" yaml:"unknown_handlers"`
	UnknownResponses  int64            `json:"unknown_responses" yaml:"unknown_responses"`
	HandlerFaults     int64            `json:"handler_faults" yaml:"handler_faults"`
	CallbacksExpired  int64            `json:"callbacks_expired" yaml:"callbacks_expired"`
	UnknownByHandler  map[string]int64 `json:"unknown_by_handler,omitempty" yaml:"unknown_by_handler,omitempty"`

	// View
	ScriptsEvaluated  int64 `json:"scripts_evaluated" yaml:"scripts_evaluated"`
	ScriptErrors      int64 `json:"script_errors" yaml:"script_errors"`
	Navigations       int64 `json:"navigations" yaml:"navigations"`
	RuntimeInjections int64 `json:"runtime_injections" yaml:"runtime_injections"`

	// Storage
	LodeWriteSuccess int64 `json:"lode_write_success" yaml:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure" yaml:"lode_write_failure"`
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
