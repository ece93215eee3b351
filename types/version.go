package types

// Version is the canonical project version.
// The CLI, the embedded script runtime and the transcript format share it.
const Version = "0.3.0"

// ProtocolVersion is the envelope protocol version spoken by the embedded
// script runtime. It changes only when the wire shape changes.
const ProtocolVersion = "1"
