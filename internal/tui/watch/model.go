package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/testagent/internal/events"
)

const (
	maxEventLog     = 50
	healthInterval  = 5 * time.Second
	reconnectDelay  = 3 * time.Second
	channelCapacity = 100
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	ctx      context.Context
	agentURL string

	width  int
	height int

	// State
	health     HealthState
	workspaces map[int]*WorkspaceState
	eventLog   []events.Event
	lastID     int64

	// Live indicators
	activity Activity
	busy     spinner.Model

	// UI state
	theme    Theme
	selected int

	// Communication
	hubEvents chan events.Event

	// Error display
	lastError string
}

// New creates a watch model for the agent at agentURL. The event stream is
// closed when ctx ends.
func New(ctx context.Context, agentURL string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		ctx:        ctx,
		agentURL:   strings.TrimSuffix(agentURL, "/"),
		workspaces: make(map[int]*WorkspaceState),
		eventLog:   make([]events.Event, 0),
		hubEvents:  make(chan events.Event, channelCapacity),
		busy:       spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Spinner)),
		theme:      theme,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.ctx, m.agentURL, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.agentURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		m.busy.Tick,
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
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.workspaces)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.busy, cmd = m.busy.Update(msg)
		return m, cmd

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}

		m.activity.OnEvent(e.At)
		updateWorkspaceState(m.workspaces, e)
		if m.selected >= len(m.workspaces) && m.selected > 0 {
			m.selected = len(m.workspaces) - 1
		}

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Workspaces = msg.Workspaces
		m.health.RunningCommands = msg.RunningCommands
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, m.pollHealth()

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the shared channel,
		// so only the subscription needs restarting.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.ctx, m.agentURL, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, m.pollHealth()
	}

	return m, nil
}

func (m Model) pollHealth() tea.Cmd {
	url := m.agentURL
	return tea.Tick(healthInterval, func(time.Time) tea.Msg { return fetchHealth(url) })
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.agentURL + "..."
	}

	header := renderHeader(m.agentURL, m.health, m.busy, m.activity, m.theme, m.width)
	workspaces := renderWorkspaces(m.workspaces, m.selected, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Workspaces")

	parts := []string{header, workspaces, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Run starts the TUI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, agentURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, err := tea.NewProgram(New(ctx, agentURL), tea.WithContext(ctx)).Run()
	return err
}
