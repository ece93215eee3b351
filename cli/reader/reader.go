package reader

import (
	"context"
	"errors"
	"fmt"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/jsbridge/adapter"
	"github.com/pithecene-io/jsbridge/lode"
	"github.com/pithecene-io/jsbridge/transcript"
	"github.com/pithecene-io/jsbridge/types"
)

// ErrSessionNotFound is returned when an archive holds no messages for the
// requested session.
var ErrSessionNotFound = errors.New("session not found")

// Reader serves read-only commands from an archive.
type Reader interface {
	InspectSession(ctx context.Context, sessionID string) (*InspectTranscriptResponse, error)
	StatsSession(ctx context.Context, sessionID string) (*MetricsSnapshot, error)
}

// InspectFile loads a transcript file and summarizes it.
func InspectFile(path string) (*InspectTranscriptResponse, error) {
	records, err := transcript.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newInspectResponse(path, records), nil
}

func newInspectResponse(source string, records []types.TranscriptRecord) *InspectTranscriptResponse {
	summary := transcript.Summarize(records)
	resp := &InspectTranscriptResponse{
		Source:  source,
		Outcome: adapter.Outcome(summary, nil),
		Summary: summary,
		Records: records,
	}
	if len(records) > 0 {
		resp.SessionID = records[0].SessionID
	}
	return resp
}

// LodeReader reads archived sessions from a Lode dataset.
type LodeReader struct {
	ds lodelibrary.Dataset
}

// NewLodeReader wraps an opened dataset.
func NewLodeReader(ds lodelibrary.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// InspectSession rebuilds the transcript of an archived session.
func (r *LodeReader) InspectSession(ctx context.Context, sessionID string) (*InspectTranscriptResponse, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	records, err := lode.ReadTranscript(ctx, r.ds, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return newInspectResponse(fmt.Sprintf("%s/session=%s", r.ds.ID(), sessionID), records), nil
}

// StatsSession returns the latest metrics row, for sessionID or, when empty,
// for any session.
func (r *LodeReader) StatsSession(ctx context.Context, sessionID string) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, r.ds, sessionID)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

var _ Reader = (*LodeReader)(nil)
