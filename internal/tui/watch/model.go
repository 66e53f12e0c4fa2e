package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/runlet/internal/events"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	runs     *runList
	eventLog []events.Event
	lastID   int64

	// output shows the selected run's captured stdout/stderr tail.
	output      viewport.Model
	selectedRun int

	heartbeat Heartbeat
	pulse     Pulse
	theme     Theme

	hubEvents chan events.Event
	lastError string
}

// New creates a watch model pointed at a runlet API endpoint.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		runs:      newRunList(),
		hubEvents: make(chan events.Event, 100),
		output:    viewport.New(80, 8),
		heartbeat: NewHeartbeat(),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selectedRun > 0 {
				m.selectedRun--
				m.refreshOutput()
			}
		case "down", "j":
			if m.selectedRun < m.runs.len()-1 {
				m.selectedRun++
				m.refreshOutput()
			}
		case "pgup":
			m.output.HalfViewUp()
		case "pgdown":
			m.output.HalfViewDown()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width - 6
		m.refreshOutput()

	case tickMsg:
		m.heartbeat.Beat()
		m.pulse.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		m.pulse.OnEvent()

		if changed := m.runs.apply(e); changed != "" {
			if sel := m.runs.at(m.selectedRun); sel != nil && sel.ID == changed {
				m.refreshOutput()
			}
		}

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// Resume from the last seen event ID so nothing is missed.
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

// refreshOutput loads the selected run's output tail into the viewport.
func (m *Model) refreshOutput() {
	run := m.runs.at(m.selectedRun)
	if run == nil {
		m.output.SetContent("")
		return
	}
	atBottom := m.output.AtBottom()
	m.output.SetContent(string(run.Output))
	if atBottom {
		m.output.GotoBottom()
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to runlet..."
	}

	header := renderHeader(m.health, m.heartbeat, m.pulse, m.theme, m.width)
	runs := renderRuns(m.runs, m.selectedRun, m.theme, m.width)
	outputPanel := m.renderOutput()
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit  [up/down] Select run  [pgup/pgdn] Scroll output")

	parts := []string{header, runs, outputPanel, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderOutput() string {
	innerWidth := m.width - 4

	title := "OUTPUT"
	if run := m.runs.at(m.selectedRun); run != nil {
		title = fmt.Sprintf("OUTPUT %s", run.summary())
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render(title),
		m.output.View(),
	)
	return m.theme.Border.Width(innerWidth).Render(content)
}
