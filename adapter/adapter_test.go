package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/transcript"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, 0); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := Backoff(3, time.Millisecond); got != 4*time.Millisecond {
		t.Errorf("Backoff(3, 1ms) = %v, want 4ms", got)
	}
}

func TestRetry(t *testing.T) {
	errBoom := errors.New("boom")
	errFatal := errors.New("fatal")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 3, time.Millisecond, nil, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 2, time.Millisecond, nil, func(context.Context) error {
			calls++
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
		if !strings.HasPrefix(err.Error(), "test: failed after 3 attempts") {
			t.Errorf("err = %q", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("permanent error stops", func(t *testing.T) {
		calls := 0
		err := Retry(t.Context(), "test", 5, time.Millisecond,
			func(err error) bool { return errors.Is(err, errFatal) },
			func(context.Context) error {
				calls++
				return errFatal
			})
		if !errors.Is(err, errFatal) {
			t.Errorf("err = %v, want wrapped fatal", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := Retry(ctx, "test", 1, time.Millisecond, nil, func(context.Context) error {
			t.Error("fn called with canceled context")
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name    string
		summary transcript.Summary
		err     error
		want    string
	}{
		{"clean", transcript.Summary{Calls: 1}, nil, OutcomeSuccess},
		{"unanswered", transcript.Summary{Unanswered: []string{"native_cb_1"}}, nil, OutcomeUnanswered},
		{"error wins", transcript.Summary{Unanswered: []string{"native_cb_1"}}, errors.New("x"), OutcomeError},
	}
	for _, tt := range tests {
		if got := Outcome(tt.summary, tt.err); got != tt.want {
			t.Errorf("%s: Outcome = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewSessionCompletedEvent(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	snap := metrics.Snapshot{CallsSent: 2, SessionID: "s-1"}

	e := NewSessionCompletedEvent("s-1", "page.html", transcript.Summary{Calls: 2}, snap, nil, started, finished)

	if _, err := uuid.Parse(e.EventID); err != nil {
		t.Errorf("EventID %q is not a uuid: %v", e.EventID, err)
	}
	if e.EventType != EventType {
		t.Errorf("EventType = %q, want %q", e.EventType, EventType)
	}
	if e.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", e.Outcome)
	}
	if e.Timestamp != "2026-03-01T12:00:01Z" {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}
	if e.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", e.DurationMs)
	}
	if e.Error != "" {
		t.Errorf("Error = %q, want empty", e.Error)
	}

	failed := NewSessionCompletedEvent("s-1", "page.html", transcript.Summary{}, snap, errors.New("load failed"), started, finished)
	if failed.Outcome != OutcomeError || failed.Error != "load failed" {
		t.Errorf("failed event = %+v", failed)
	}
}
