package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/jsbridge/metrics"
	"github.com/pithecene-io/jsbridge/transcript"
)

// Report is the structured summary printed by `jsbridge run` and written
// by --report.
type Report struct {
	SessionID  string             `json:"session_id" yaml:"session_id"`
	Page       string             `json:"page" yaml:"page"`
	Outcome    string             `json:"outcome" yaml:"outcome"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
	ExitCode   int                `json:"exit_code" yaml:"exit_code"`
	TimedOut   bool               `json:"timed_out" yaml:"timed_out"`
	DurationMs int64              `json:"duration_ms" yaml:"duration_ms"`
	Replies    []Reply            `json:"replies" yaml:"replies"`
	Summary    transcript.Summary `json:"summary" yaml:"summary"`
	Metrics    metrics.Snapshot   `json:"metrics" yaml:"metrics"`
	Console    []string           `json:"console,omitempty" yaml:"console,omitempty"`

	TranscriptPath string `json:"transcript_path,omitempty" yaml:"transcript_path,omitempty"`
	StoragePath    string `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`
}

// BuildReport composes a Report from a finished session. exitCode is the
// process exit code the caller will return.
func BuildReport(result *Result, exitCode int) *Report {
	report := &Report{
		SessionID:  result.SessionID,
		Page:       result.Page,
		Outcome:    result.Outcome,
		ExitCode:   exitCode,
		TimedOut:   result.TimedOut,
		DurationMs: result.Duration().Milliseconds(),
		Replies:    result.Replies,
		Summary:    result.Summary,
		Metrics:    result.Metrics,
	}
	if report.Replies == nil {
		report.Replies = []Reply{}
	}
	if result.LoadError != nil {
		report.Error = result.LoadError.Error()
	}
	for _, e := range result.Console {
		report.Console = append(report.Console, e.Level+": "+e.Message)
	}
	return report
}

// WriteReport writes the report as JSON to path. "-" writes to stderr.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // reports are not secret
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func writeReportTo(report *Report, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
