package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/jsbridge/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_session":
		content = m.renderStatsSession()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsSession() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session " + data.SessionID))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Completed:"), ValueStyle.Render(data.Ts)))
	b.WriteString(fmt.Sprintf("%s %s\n\n", LabelStyle.Render("View:"), ValueStyle.Render(data.View)))

	b.WriteString(sectionTitle("Outbound"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Calls", data.CallsSent, handlerColor),
		m.renderStatBox("Notifications", data.NotificationsSent, handlerColor),
		m.renderStatBox("Replies", data.RepliesSent, okColor),
		m.renderStatBox("Buffered", data.MessagesBuffered, inboundColor),
	))
	b.WriteString("\n")

	b.WriteString(sectionTitle("Inbound"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Handled", data.CallsHandled, handlerColor),
		m.renderStatBox("Resolved", data.RepliesResolved, okColor),
		m.renderStatBox("Malformed", data.MalformedMessages, counterColor(data.MalformedMessages)),
		m.renderStatBox("Faults", data.HandlerFaults, counterColor(data.HandlerFaults)),
	))
	b.WriteString("\n")

	b.WriteString(sectionTitle("View"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Scripts", data.ScriptsEvaluated, handlerColor),
		m.renderStatBox("Script errors", data.ScriptErrors, counterColor(data.ScriptErrors)),
		m.renderStatBox("Navigations", data.Navigations, handlerColor),
		m.renderStatBox("Injections", data.RuntimeInjections, okColor),
	))

	if len(data.UnknownByHandler) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionTitle("Unknown handlers"))
		names := make([]string, 0, len(data.UnknownByHandler))
		for name := range data.UnknownByHandler {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				LabelStyle.Render(name),
				FaultStyle.Render(fmt.Sprintf("%d", data.UnknownByHandler[name]))))
		}
	}

	return b.String()
}

func sectionTitle(s string) string {
	return SectionStyle.Render(s) + "\n"
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	valueStr := CounterValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := CounterLabelStyle.Render(label)
	return CounterBoxStyle.BorderForeground(color).
		Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without the full TUI.
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
