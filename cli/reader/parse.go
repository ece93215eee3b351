package reader

import "errors"

// ParseMetricsRecord converts an archived metrics row to a MetricsSnapshot.
// Numeric fields may be int64 (never left memory) or float64 (JSONL round
// trip).
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts:        toString(record["ts"]),
		SessionID: toString(record["session"]),
		Day:       toString(record["day"]),
		View:      toString(record["view"]),

		CallsSent:          toInt64(record["calls_sent"]),
		NotificationsSent:  toInt64(record["notifications_sent"]),
		RepliesSent:        toInt64(record["replies_sent"]),
		MessagesBuffered:   toInt64(record["messages_buffered"]),
		MessagesDrained:    toInt64(record["messages_drained"]),
		MessagesDispatched: toInt64(record["messages_dispatched"]),

		InboundMessages:   toInt64(record["inbound_messages"]),
		CallsHandled:      toInt64(record["calls_handled"]),
		RepliesResolved:   toInt64(record["replies_resolved"]),
		MalformedMessages: toInt64(record["malformed_messages"]),
		UnknownHandlers:   toInt64(record["unknown_handlers"]),
		UnknownResponses:  toInt64(record["unknown_responses"]),
		HandlerFaults:     toInt64(record["handler_faults"]),
		CallbacksExpired:  toInt64(record["callbacks_expired"]),

		ScriptsEvaluated:  toInt64(record["scripts_evaluated"]),
		ScriptErrors:      toInt64(record["script_errors"]),
		Navigations:       toInt64(record["navigations"]),
		RuntimeInjections: toInt64(record["runtime_injections"]),

		LodeWriteSuccess: toInt64(record["lode_write_success"]),
		LodeWriteFailure: toInt64(record["lode_write_failure"]),
	}

	if v, ok := record["unknown_by_handler"]; ok && v != nil {
		snap.UnknownByHandler = parseCounterMap(v)
	}

	// The write path always sets these; a row without them is corrupt.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.SessionID == "" {
		return nil, errors.New("metrics record missing required field: session")
	}

	return snap, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// parseCounterMap handles map[string]int64 (direct) and map[string]any
// (JSON round trip).
func parseCounterMap(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
