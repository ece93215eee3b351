package types

// Direction says which way an envelope crossed the bridge.
type Direction string

// Direction constants.
const (
	// DirectionOutbound is host -> script.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound is script -> host.
	DirectionInbound Direction = "inbound"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// TranscriptRecord is one envelope as observed by a transcript recorder.
type TranscriptRecord struct {
	// Seq is the monotonic record number within a session, starting at 1.
	Seq int64 `msgpack:"seq" json:"seq" yaml:"seq"`
	// Ts is the observation time in RFC 3339 (nanoseconds, UTC).
	Ts string `msgpack:"ts" json:"ts" yaml:"ts"`
	// SessionID identifies the bridge session.
	SessionID string `msgpack:"session_id" json:"session_id" yaml:"session_id"`
	// Direction is outbound or inbound.
	Direction Direction `msgpack:"direction" json:"direction" yaml:"direction"`
	// Envelope is the observed message.
	Envelope Envelope `msgpack:"envelope" json:"envelope" yaml:"envelope"`
}

// Kind returns "reply", "call" or "unknown" for display.
func (r *TranscriptRecord) Kind() string {
	switch {
	case r.Envelope.IsReply():
		return "reply"
	case r.Envelope.IsCall():
		return "call"
	default:
		return "unknown"
	}
}
