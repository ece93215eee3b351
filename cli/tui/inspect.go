package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/jsbridge/cli/reader"
	"github.com/pithecene-io/jsbridge/types"
)

// headerLines is the height of the summary block above the record list.
const headerLines = 12

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
	ready    bool
	records  viewport.Model
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.records, cmd = m.records.Update(msg)
	return m, cmd
}

func (m *InspectModel) resize() {
	h := max(m.height-headerLines, 3)
	if !m.ready {
		m.records = viewport.New(m.width, h)
		m.ready = true
	} else {
		m.records.Width = m.width
		m.records.Height = h
	}
	if data, ok := m.data.(*reader.InspectTranscriptResponse); ok {
		m.records.SetContent(renderRecordLines(data.Records, m.width))
	}
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_transcript":
		content = m.renderInspectTranscript()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ scroll • q quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectTranscript() string {
	data, ok := m.data.(*reader.InspectTranscriptResponse)
	if !ok {
		return "Invalid data type for inspect_transcript"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Transcript"))
	b.WriteString("\n")

	s := data.Summary
	unanswered := ValueStyle.Render("none")
	if len(s.Unanswered) > 0 {
		unanswered = FaultStyle.Render(strings.Join(s.Unanswered, ", "))
	}
	rows := [][2]string{
		{"Source", ValueStyle.Render(data.Source)},
		{"Session", ValueStyle.Render(data.SessionID)},
		{"Outcome", OutcomeStyle(data.Outcome).Render(data.Outcome)},
		{"Records", ValueStyle.Render(fmt.Sprintf("%d (%d out, %d in)", s.Total, s.Outbound, s.Inbound))},
		{"Calls", ValueStyle.Render(fmt.Sprintf("%d", s.Calls))},
		{"Replies", ValueStyle.Render(fmt.Sprintf("%d", s.Replies))},
		{"Unanswered", unanswered},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), row[1]))
	}

	header := HeaderBoxStyle.Render(b.String())
	if !m.ready {
		return header + "\n" + renderRecordLines(data.Records, m.width)
	}
	return header + "\n" + m.records.View()
}

// renderRecordLines formats one line per record.
func renderRecordLines(records []types.TranscriptRecord, width int) string {
	if len(records) == 0 {
		return HelpStyle.Render("(no records)")
	}
	dataWidth := max(width-40, 16)

	var b strings.Builder
	for i := range records {
		rec := &records[i]
		env := &rec.Envelope

		var desc string
		if env.IsReply() {
			desc = fmt.Sprintf("reply %s %s",
				CallbackStyle.Render(types.Value(env.ResponseID)),
				reader.Truncate(types.Value(env.ResponseData), dataWidth))
		} else {
			desc = fmt.Sprintf("call  %s %s",
				HandlerStyle.Render(types.Value(env.HandlerName)),
				reader.Truncate(types.Value(env.Data), dataWidth))
			if env.CallbackID != nil {
				desc += CallbackStyle.Render(" cb=" + *env.CallbackID)
			}
		}
		fmt.Fprintf(&b, "%4d %s %s\n", rec.Seq, DirectionArrow(rec.Direction), desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without the full TUI.
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
