// Package ipc implements the bridge wire codec and transcript framing.
//
// Envelopes cross the bridge as compact JSON objects. Transcripts of those
// envelopes are stored as length-prefixed msgpack frames.
package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pithecene-io/jsbridge/types"
)

// DispatchFunction is the script-side entry point for host -> script delivery.
const DispatchFunction = "WebViewJavascriptBridge._handleMessageFromJava"

// Wire field names.
const (
	fieldCallbackID   = "callbackId"
	fieldData         = "data"
	fieldHandlerName  = "handlerName"
	fieldResponseID   = "responseId"
	fieldResponseData = "responseData"
)

// DecodeErrorKind classifies envelope decoding failures.
type DecodeErrorKind int

const (
	// DecodeErrorEmpty indicates empty or whitespace-only input.
	DecodeErrorEmpty DecodeErrorKind = iota
	// DecodeErrorSyntax indicates input that is not valid JSON.
	DecodeErrorSyntax
	// DecodeErrorNotObject indicates valid JSON whose top level is not an object.
	DecodeErrorNotObject
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeErrorEmpty:
		return "empty"
	case DecodeErrorSyntax:
		return "syntax"
	case DecodeErrorNotObject:
		return "not_object"
	default:
		return "unknown"
	}
}

// DecodeError reports a malformed inbound envelope.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("malformed message (%s): %s", e.Kind, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is an envelope decoding failure.
func IsMalformed(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// EncodeEnvelope serializes env as a compact JSON object.
// Absent fields are omitted, never written as null.
func EncodeEnvelope(env *types.Envelope) (string, error) {
	if env == nil {
		return "", errors.New("encode envelope: nil envelope")
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(b), nil
}

// DecodeEnvelope parses an envelope received from the script context.
//
// Only fields present in the input are populated. String values are taken
// verbatim; any other non-null value is kept as its compact JSON text. An
// explicit null counts as absent. Unknown fields are ignored.
func DecodeEnvelope(raw string) (*types.Envelope, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, &DecodeError{Kind: DecodeErrorEmpty, Msg: "empty input"}
	}

	if !json.Valid(trimmed) {
		var v any
		err := json.Unmarshal(trimmed, &v)
		return nil, &DecodeError{Kind: DecodeErrorSyntax, Msg: "invalid json", Err: err}
	}
	if trimmed[0] != '{' {
		return nil, &DecodeError{Kind: DecodeErrorNotObject, Msg: "top-level value is not an object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &DecodeError{Kind: DecodeErrorSyntax, Msg: "invalid object", Err: err}
	}

	env := &types.Envelope{}
	targets := map[string]**string{
		fieldCallbackID:   &env.CallbackID,
		fieldData:         &env.Data,
		fieldHandlerName:  &env.HandlerName,
		fieldResponseID:   &env.ResponseID,
		fieldResponseData: &env.ResponseData,
	}
	for name, target := range targets {
		value, ok := fields[name]
		if !ok {
			continue
		}
		s, present, err := coerce(value)
		if err != nil {
			return nil, &DecodeError{Kind: DecodeErrorSyntax, Msg: "field " + name, Err: err}
		}
		if present {
			*target = types.Ptr(s)
		}
	}
	return env, nil
}

// coerce turns one raw field value into its string form.
func coerce(value json.RawMessage) (string, bool, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return "", false, nil
	}
	if value[0] == '"' {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return "", false, err
	}
	return buf.String(), true, nil
}

// DispatchScript builds the script that hands an encoded envelope to the
// script-side runtime.
func DispatchScript(wire string) string {
	return DispatchFunction + "(" + wire + ")"
}
