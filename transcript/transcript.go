// Package transcript records every envelope that crosses a bridge.
//
// A Log keeps records in memory and can also stream them as length-prefixed
// msgpack frames (see package ipc) to a writer such as a file.
package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pithecene-io/jsbridge/ipc"
	"github.com/pithecene-io/jsbridge/iox"
	"github.com/pithecene-io/jsbridge/types"
)

// Log is a transcript recorder. It implements bridge.Recorder.
// Safe for concurrent use.
type Log struct {
	sessionID string
	now       func() time.Time

	mu      sync.Mutex
	seq     int64
	records []types.TranscriptRecord
	enc     *ipc.FrameEncoder
	err     error
}

// New creates an in-memory transcript for a session.
func New(sessionID string) *Log {
	return &Log{sessionID: sessionID, now: time.Now}
}

// NewStreaming creates a transcript that also writes every record to w.
// Call Flush before closing w.
func NewStreaming(sessionID string, w io.Writer) *Log {
	l := New(sessionID)
	l.enc = ipc.NewFrameEncoder(w)
	return l
}

// Record appends one observed envelope.
func (l *Log) Record(dir types.Direction, env *types.Envelope) {
	if env == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	record := types.TranscriptRecord{
		Seq:       l.seq,
		Ts:        l.now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Direction: dir,
		Envelope:  *env,
	}
	l.records = append(l.records, record)

	if l.enc != nil && l.err == nil {
		if err := l.enc.WriteRecord(&record); err != nil {
			l.err = fmt.Errorf("transcript record %d: %w", record.Seq, err)
		}
	}
}

// Records returns a copy of the records so far.
func (l *Log) Records() []types.TranscriptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.TranscriptRecord(nil), l.records...)
}

// Len returns the number of records so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// SessionID returns the session the log records for.
func (l *Log) SessionID() string {
	return l.sessionID
}

// Flush writes buffered frames and returns the first write error, if any.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.enc == nil {
		return nil
	}
	return l.enc.Flush()
}

// ReadAll decodes every record in a framed transcript stream.
// A fatal framing error stops the read; records decoded so far are returned
// with the error.
func ReadAll(r io.Reader) ([]types.TranscriptRecord, error) {
	dec := ipc.NewFrameDecoder(r)
	var records []types.TranscriptRecord
	for {
		record, err := dec.ReadRecord()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, *record)
	}
}

// ReadFile decodes a transcript file.
func ReadFile(path string) ([]types.TranscriptRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path is user-supplied by design of the CLI
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer iox.DiscardClose(f)
	return ReadAll(f)
}

// WriteFile writes records to path as a framed transcript.
func WriteFile(path string, records []types.TranscriptRecord) (err error) {
	f, err := os.Create(path) //nolint:gosec // see ReadFile
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	defer iox.CloseInto(&err, f)
	return writeAll(f, records)
}

// Encode returns records as one framed transcript blob.
func Encode(records []types.TranscriptRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeAll(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAll(w io.Writer, records []types.TranscriptRecord) error {
	enc := ipc.NewFrameEncoder(w)
	for i := range records {
		if err := enc.WriteRecord(&records[i]); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// Summary aggregates a transcript.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Outbound int `json:"outbound" yaml:"outbound"`
	Inbound  int `json:"inbound" yaml:"inbound"`
	Calls    int `json:"calls" yaml:"calls"`
	Replies  int `json:"replies" yaml:"replies"`
	// Handlers counts calls per handler name.
	Handlers map[string]int `json:"handlers" yaml:"handlers"`
	// Unanswered lists callback ids of calls that never got a reply, sorted.
	Unanswered []string `json:"unanswered" yaml:"unanswered"`
}

// Summarize aggregates records. A call counts as answered when a reply in the
// opposite direction carries its callback id.
func Summarize(records []types.TranscriptRecord) Summary {
	s := Summary{Handlers: map[string]int{}}

	type key struct {
		dir types.Direction
		id  string
	}
	open := map[key]bool{}

	for i := range records {
		r := &records[i]
		s.Total++
		switch r.Direction {
		case types.DirectionOutbound:
			s.Outbound++
		case types.DirectionInbound:
			s.Inbound++
		}

		env := &r.Envelope
		switch {
		case env.IsReply():
			s.Replies++
			// A reply travelling inbound answers an outbound call, and vice versa.
			delete(open, key{dir: opposite(r.Direction), id: *env.ResponseID})
		case env.IsCall():
			s.Calls++
			s.Handlers[*env.HandlerName]++
			if env.CallbackID != nil {
				open[key{dir: r.Direction, id: *env.CallbackID}] = true
			}
		}
	}

	for k := range open {
		s.Unanswered = append(s.Unanswered, k.id)
	}
	sort.Strings(s.Unanswered)
	return s
}

func opposite(d types.Direction) types.Direction {
	if d == types.DirectionInbound {
		return types.DirectionOutbound
	}
	return types.DirectionInbound
}
