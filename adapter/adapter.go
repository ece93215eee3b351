// Package adapter defines the boundary for notifying downstream systems that
// a bridge session has finished.
//
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/transcript"
	"github.com/pithecene-io/jsbridge/types"
)

// EventType is the event_type of every published event.
const EventType = "session_completed"

// Session outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeUnanswered = "unanswered"
	OutcomeError      = "error"
)

// DefaultBackoff is the delay before the first retry. Each later retry
// doubles it.
const DefaultBackoff = 500 * time.Millisecond

// SessionCompletedEvent is the payload published when a session finishes.
type SessionCompletedEvent struct {
	ContractVersion string             `json:"contract_version"`
	EventType       string             `json:"event_type"`
	EventID         string             `json:"event_id"`
	SessionID       string             `json:"session_id"`
	Page            string             `json:"page"`
	Outcome         string             `json:"outcome"`
	Error           string             `json:"error,omitempty"`
	Summary         transcript.Summary `json:"summary"`
	Metrics         metrics.Snapshot   `json:"metrics"`
	TranscriptPath  string             `json:"transcript_path,omitempty"`
	StoragePath     string             `json:"storage_path,omitempty"`
	Timestamp       string             `json:"timestamp"`
	DurationMs      int64              `json:"duration_ms"`
}

// NewSessionCompletedEvent builds an event with a fresh id and the outcome
// implied by summary and runErr.
func NewSessionCompletedEvent(sessionID, page string, summary transcript.Summary, snap metrics.Snapshot, runErr error, started, finished time.Time) *SessionCompletedEvent {
	e := &SessionCompletedEvent{
		ContractVersion: types.ProtocolVersion,
		EventType:       EventType,
		EventID:         uuid.NewString(),
		SessionID:       sessionID,
		Page:            page,
		Outcome:         Outcome(summary, runErr),
		Summary:         summary,
		Metrics:         snap,
		Timestamp:       finished.UTC().Format(time.RFC3339),
		DurationMs:      finished.Sub(started).Milliseconds(),
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	return e
}

// Outcome classifies a finished session.
func Outcome(summary transcript.Summary, runErr error) string {
	switch {
	case runErr != nil:
		return OutcomeError
	case len(summary.Unanswered) > 0:
		return OutcomeUnanswered
	default:
		return OutcomeSuccess
	}
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends a session completion event downstream.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt (1-based): base, 2*base,
// 4*base and so on.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	if base <= 0 {
		base = DefaultBackoff
	}
	return time.Duration(1<<uint(attempt-1)) * base
}

// Retry calls fn up to 1+retries times with Backoff between attempts. It
// stops early when fn's error is non-retriable according to permanent, or
// when ctx ends. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, base time.Duration, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i, base)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
