// Package types defines the wire and record types shared across the bridge.
//
//nolint:revive // types is a common Go package naming convention
package types

// Envelope is one message unit exchanged between the host and the script
// context. Every field is optional; presence, not value, decides whether an
// envelope is a call or a reply, so fields are pointers.
//
// JSON tags match the script runtime's wire format. msgpack tags are used
// when envelopes are framed into transcripts.
type Envelope struct {
	// CallbackID is echoed back by the receiver when it replies to a call.
	CallbackID *string `json:"callbackId,omitempty" msgpack:"callback_id,omitempty"`
	// Data is the opaque argument payload of a call.
	Data *string `json:"data,omitempty" msgpack:"data,omitempty"`
	// HandlerName names the capability being invoked.
	HandlerName *string `json:"handlerName,omitempty" msgpack:"handler_name,omitempty"`
	// ResponseID identifies the pending call this envelope answers.
	ResponseID *string `json:"responseId,omitempty" msgpack:"response_id,omitempty"`
	// ResponseData is the opaque payload of a reply.
	ResponseData *string `json:"responseData,omitempty" msgpack:"response_data,omitempty"`
}

// IsReply reports whether the envelope answers a previous call.
func (e *Envelope) IsReply() bool {
	return e.ResponseID != nil
}

// IsCall reports whether the envelope invokes a named capability.
func (e *Envelope) IsCall() bool {
	return e.ResponseID == nil && e.HandlerName != nil
}

// Value returns *p, or "" when p is nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to s.
func Ptr(s string) *string {
	return &s
}

// NewCall builds a call envelope. A nil data leaves the field absent; an
// empty string is sent as "".
func NewCall(handlerName string, data *string, callbackID string) *Envelope {
	env := &Envelope{HandlerName: Ptr(handlerName), Data: data}
	if callbackID != "" {
		env.CallbackID = Ptr(callbackID)
	}
	return env
}

// NewReply builds a reply envelope answering responseID.
func NewReply(responseID, responseData string) *Envelope {
	return &Envelope{
		ResponseID:   Ptr(responseID),
		ResponseData: Ptr(responseData),
	}
}
