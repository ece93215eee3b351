// Package tui provides Bubble Tea views for the jsbridge CLI.
//
// TUI mode is opt-in (--tui) and read-only. Views render the same payloads
// as the json/table/yaml output and carry no extra data.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/jsbridge/adapter"
	"github.com/pithecene-io/jsbridge/types"
)

// Palette. Outbound traffic (host to page) is teal, inbound is amber.
var (
	accentColor   = lipgloss.Color("#7C3AED")
	outboundColor = lipgloss.Color("#14B8A6")
	inboundColor  = lipgloss.Color("#F59E0B")
	handlerColor  = lipgloss.Color("#3B82F6")
	okColor       = lipgloss.Color("#10B981")
	faultColor    = lipgloss.Color("#EF4444")
	dimColor      = lipgloss.Color("#6B7280")
	textColor     = lipgloss.Color("#F9FAFB")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	// LabelStyle pads field labels to a fixed column.
	LabelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(16)

	ValueStyle = lipgloss.NewStyle().Foreground(textColor)

	// HandlerStyle renders handler names in record lines.
	HandlerStyle = lipgloss.NewStyle().Foreground(handlerColor)

	// CallbackStyle renders callback and response ids.
	CallbackStyle = lipgloss.NewStyle().Foreground(dimColor)

	FaultStyle = lipgloss.NewStyle().Foreground(faultColor)

	HeaderBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			MarginTop(1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(handlerColor)

	// CounterBoxStyle frames one metrics counter; the border takes the
	// counter's color.
	CounterBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	CounterLabelStyle = lipgloss.NewStyle().
				Foreground(dimColor).
				Align(lipgloss.Center)

	CounterValueStyle = lipgloss.NewStyle().
				Bold(true).
				Align(lipgloss.Center)
)

// OutcomeStyle colors a session outcome.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case adapter.OutcomeSuccess:
		return lipgloss.NewStyle().Foreground(okColor)
	case adapter.OutcomeUnanswered:
		return lipgloss.NewStyle().Foreground(inboundColor)
	case adapter.OutcomeError:
		return FaultStyle
	default:
		return ValueStyle
	}
}

// DirectionArrow renders the arrow for a transcript record.
func DirectionArrow(dir types.Direction) string {
	if dir == types.DirectionInbound {
		return lipgloss.NewStyle().Foreground(inboundColor).Render("←")
	}
	return lipgloss.NewStyle().Foreground(outboundColor).Render("→")
}

// counterColor is red for any non-zero failure counter.
func counterColor(n int64) lipgloss.Color {
	if n > 0 {
		return faultColor
	}
	return okColor
}
