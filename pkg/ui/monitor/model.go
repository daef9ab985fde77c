package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"serialbridge/pkg/bus"
	"serialbridge/pkg/logger"
)

const (
	maxEntries     = 500
	textPreviewMax = 120
)

type eventMsg bus.Event

type streamClosedMsg struct{}

type tally struct {
	lines    int
	received int
	sent     int
	failed   int
	commands int
}

type model struct {
	events <-chan bus.Event
	info   Info

	theme     theme
	spinner   spinner.Model
	viewport  viewport.Model
	entries   []bus.Event
	counts    tally
	lastErr   string
	width     int
	height    int
	isReady   bool
	followLog bool
}

func newModel(events <-chan bus.Event, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))

	return &model{
		events:    events,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport()
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
		m.handleViewportKey(typed)
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case eventMsg:
		m.record(bus.Event(typed))
		m.refreshViewport()
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		if len(m.entries) > 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	return m, nil
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport()
	}

	header := m.theme.header.Width(m.width - 2).Render("Serial Bridge Monitor")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"session:%s · port:%s@%d · %s→%s · %s←%s · command:%s",
		displayOrNA(m.info.Session),
		displayOrNA(m.info.Port),
		m.info.Baud,
		"serial",
		displayOrNA(m.info.Output),
		"serial",
		displayOrNA(m.info.Input),
		displayOrNA(m.info.Command),
	))
	counters := m.theme.headerMeta.Render(fmt.Sprintf(
		"lines:%d · received:%d · sent:%d · failed:%d · commands:%d",
		m.counts.lines, m.counts.received, m.counts.sent, m.counts.failed, m.counts.commands,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("PgUp/PgDn scroll  ·  End follow  ·  q/Esc quit")
	if len(m.entries) == 0 {
		status = m.theme.statusIdle.Render(fmt.Sprintf("%s waiting for traffic...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last failure: " + previewText(m.lastErr))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header, meta, counters, line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
	)
}

func (m *model) record(event bus.Event) {
	switch event.Type {
	case bus.EventLineReceived:
		m.counts.lines++
	case bus.EventMessageReceived:
		m.counts.received++
	case bus.EventMessageSent:
		m.counts.sent++
	case bus.EventSendFailed, bus.EventLineFailed:
		m.counts.failed++
		m.lastErr = event.Error
	case bus.EventCommandHandled:
		m.counts.commands++
		if event.Error != "" {
			m.lastErr = event.Error
		}
	}

	m.entries = append(m.entries, event)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *model) resizeComponents() {
	m.viewport.Width = max(50, m.width-6)
	m.viewport.Height = max(8, m.height-10)
}

func (m *model) refreshViewport() {
	previousOffset := m.viewport.YOffset

	rows := make([]string, 0, len(m.entries))
	for _, event := range m.entries {
		rows = append(rows, m.renderEvent(event))
	}
	m.viewport.SetContent(strings.Join(rows, "\n"))

	if m.followLog {
		m.viewport.GotoBottom()
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEvent(event bus.Event) string {
	stamp := m.theme.timestamp.Render(event.At.Local().Format("15:04:05"))

	var label, detail string
	switch event.Type {
	case bus.EventLineReceived:
		label = m.theme.serial.Render("SERIAL ")
		detail = fmt.Sprintf("%q → %s", previewText(event.Text), event.Name)
	case bus.EventLineFailed:
		label = m.theme.failure.Render("READ   ")
		detail = event.Error
	case bus.EventMessageReceived:
		label = m.theme.cloud.Render("INBOUND")
		detail = fmt.Sprintf("#%d %s %q (%d properties)", event.Seq, event.Name, previewText(event.Text), len(event.Payload))
	case bus.EventMessageSent:
		label = m.theme.cloud.Render("SENT   ")
		detail = fmt.Sprintf("%s %q", event.Name, previewText(event.Text))
	case bus.EventSendFailed:
		label = m.theme.failure.Render("DROPPED")
		detail = fmt.Sprintf("%s: %s", event.Name, event.Error)
	case bus.EventCommandHandled:
		label = m.theme.command.Render("COMMAND")
		detail = fmt.Sprintf("%s → %d %q", event.Name, event.Status, previewText(event.Text))
		if event.Error != "" {
			label = m.theme.failure.Render("COMMAND")
			detail += " " + event.Error
		}
	default:
		label = m.theme.hint.Render(string(event.Type))
		detail = previewText(event.Text)
	}

	return stamp + " " + label + " " + detail
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "up", "k":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "down", "j":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home", "g":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end", "G":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func waitForEvent(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(event)
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func previewText(text string) string {
	return logger.Preview(strings.ReplaceAll(text, "\n", " "), textPreviewMax)
}
