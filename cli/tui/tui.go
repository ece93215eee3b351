package tui

import (
	"fmt"
	"maps"
	"slices"
)

// Views with a TUI. Both are read-only.
const (
	ViewInspectTranscript = "inspect_transcript"
	ViewStatsSession      = "stats_session"
)

var views = map[string]func(viewType string, data any) error{
	ViewInspectTranscript: RunInspectTUI,
	ViewStatsSession:      RunStatsTUI,
}

// Run opens the TUI for viewType over data.
func Run(viewType string, data any) error {
	run, ok := views[viewType]
	if !ok {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return run(viewType, data)
}

// IsTUISupported reports whether viewType has a TUI.
func IsTUISupported(viewType string) bool {
	_, ok := views[viewType]
	return ok
}

// SupportedTUIViews returns the views with a TUI, sorted.
func SupportedTUIViews() []string {
	return slices.Sorted(maps.Keys(views))
}
