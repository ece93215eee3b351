package lode

import (
	"time"

	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/types"
)

// RecordKind discriminator values. record_kind is also a partition key.
const (
	RecordKindMessage = "message"
	RecordKindMetrics = "metrics"
)

// toMessageRecordMap converts a transcript record for Lode storage.
// Lode's Hive layout reads partition keys from map records.
func toMessageRecordMap(r *types.TranscriptRecord, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindMessage,
		"seq":         r.Seq,
		"ts":          r.Ts,
		"direction":   string(r.Direction),
		"kind":        r.Kind(),
		"session":     cfg.SessionID,
		"day":         cfg.Day,
	}
	env := &r.Envelope
	putOptional(m, "handler_name", env.HandlerName)
	putOptional(m, "data", env.Data)
	putOptional(m, "callback_id", env.CallbackID)
	putOptional(m, "response_id", env.ResponseID)
	putOptional(m, "response_data", env.ResponseData)
	return m
}

// toMetricsRecordMap converts a metrics snapshot for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	unknown := make(map[string]any, len(snap.UnknownByHandler))
	for k, v := range snap.UnknownByHandler {
		unknown[k] = v
	}
	return map[string]any{
		"record_kind":         RecordKindMetrics,
		"ts":                  completedAt.UTC().Format(time.RFC3339Nano),
		"session":             cfg.SessionID,
		"day":                 cfg.Day,
		"view":                snap.View,
		"session_id":          snap.SessionID,
		"calls_sent":          snap.CallsSent,
		"replies_sent":        snap.RepliesSent,
		"notifications_sent":  snap.NotificationsSent,
		"messages_buffered":   snap.MessagesBuffered,
		"messages_drained":    snap.MessagesDrained,
		"messages_dispatched": snap.MessagesDispatched,
		"inbound_messages":    snap.InboundMessages,
		"calls_handled":       snap.CallsHandled,
		"replies_resolved":    snap.RepliesResolved,
		"malformed_messages":  snap.MalformedMessages,
		"unknown_handlers":    snap.UnknownHandlers,
		"unknown_responses":   snap.UnknownResponses,
		"handler_faults":      snap.HandlerFaults,
		"callbacks_expired":   snap.CallbacksExpired,
		"unknown_by_handler":  unknown,
		"scripts_evaluated":   snap.ScriptsEvaluated,
		"script_errors":       snap.ScriptErrors,
		"navigations":         snap.Navigations,
		"runtime_injections":  snap.RuntimeInjections,
		"lode_write_success":  snap.LodeWriteSuccess,
		"lode_write_failure":  snap.LodeWriteFailure,
	}
}

// FromMessageRecordMap rebuilds a transcript record from a stored row.
// Missing optional fields stay absent.
func FromMessageRecordMap(m map[string]any) types.TranscriptRecord {
	rec := types.TranscriptRecord{
		Seq:       toInt64(m["seq"]),
		Ts:        toString(m["ts"]),
		SessionID: toString(m["session"]),
		Direction: types.Direction(toString(m["direction"])),
	}
	rec.Envelope.HandlerName = optionalString(m["handler_name"])
	rec.Envelope.Data = optionalString(m["data"])
	rec.Envelope.CallbackID = optionalString(m["callback_id"])
	rec.Envelope.ResponseID = optionalString(m["response_id"])
	rec.Envelope.ResponseData = optionalString(m["response_data"])
	return rec
}

func putOptional(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// toString converts a value to string, returning "" for nil or non-strings.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types produced by the JSONL codec and by
// records that never left memory.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
