package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/pithecene-io/jsbridge/types"
)

func sampleRecord(seq int64) *types.TranscriptRecord {
	return &types.TranscriptRecord{
		Seq:       seq,
		Ts:        "2026-01-15T10:00:00.000000000Z",
		SessionID: "sess-001",
		Direction: types.DirectionOutbound,
		Envelope:  *types.NewCall("greet", types.Ptr(`{"name":"ada"}`), "native_cb_1"),
	}
}

func TestFrameEncoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	for i := int64(1); i <= 3; i++ {
		if err := enc.WriteRecord(sampleRecord(i)); err != nil {
			t.Fatalf("WriteRecord(%d) failed: %v", i, err)
		}
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	dec := NewFrameDecoder(&buf)
	for i := int64(1); i <= 3; i++ {
		record, err := dec.ReadRecord()
		if err != nil {
			t.Fatalf("ReadRecord(%d) failed: %v", i, err)
		}
		if record.Seq != i {
			t.Errorf("Seq = %d, want %d", record.Seq, i)
		}
		if record.Direction != types.DirectionOutbound {
			t.Errorf("Direction = %q, want %q", record.Direction, types.DirectionOutbound)
		}
		if got := types.Value(record.Envelope.HandlerName); got != "greet" {
			t.Errorf("HandlerName = %q, want %q", got, "greet")
		}
		if got := types.Value(record.Envelope.Data); got != `{"name":"ada"}` {
			t.Errorf("Data = %q, want %q", got, `{"name":"ada"}`)
		}
		if record.Envelope.ResponseID != nil {
			t.Error("ResponseID should stay absent")
		}
	}

	if _, err := dec.ReadRecord(); err != io.EOF {
		t.Errorf("expected io.EOF after last record, got: %v", err)
	}
}

func TestEncodeFrame_LengthPrefix(t *testing.T) {
	frame, err := EncodeFrame([]byte("abc"))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if len(frame) != LengthPrefixSize+3 {
		t.Fatalf("len(frame) = %d, want %d", len(frame), LengthPrefixSize+3)
	}
	if got := binary.BigEndian.Uint32(frame[:LengthPrefixSize]); got != 3 {
		t.Errorf("prefix = %d, want 3", got)
	}
}

func TestEncodeFrame_TooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxPayloadSize+1))
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
}

func TestFrameDecoder_PartialFrame(t *testing.T) {
	frame, err := EncodeRecord(sampleRecord(1))
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}

	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err = decoder.ReadFrame()
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()
	if err == nil {
		t.Fatal("expected error for oversized frame")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := decoder.ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// Decode errors are non-fatal: the frame itself was read correctly.
func TestDecodeRecord_MalformedMsgpack(t *testing.T) {
	frame, err := EncodeFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	_, err = DecodeRecord(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name:     "partial with underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "read failed", Err: io.ErrUnexpectedEOF},
			contains: "unexpected EOF",
		},
		{
			name:     "oversized",
			err:      &FrameError{Kind: FrameErrorTooLarge, Msg: "payload too big"},
			contains: "too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := tt.err.Error(); !strings.Contains(msg, tt.contains) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

func TestFrameError_Unwrap(t *testing.T) {
	err := &FrameError{Kind: FrameErrorPartial, Msg: "test", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("regular error")) {
		t.Error("regular errors should not be fatal frame errors")
	}
	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}
	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
