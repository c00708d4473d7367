// Package tui holds terminal views over a running agent.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

const refreshInterval = 5 * time.Second

type historyMsg []protocol.HistoryEntry
type errMsg error

// HistoryModel browses the agent's finished-command journal.
type HistoryModel struct {
	ctx      context.Context
	agentURL string
	limit    int

	width  int
	height int

	entries   []protocol.HistoryEntry
	table     table.Model
	detail    viewport.Model
	lastError string
	fetchedAt time.Time
}

// NewHistory creates a browser over GET /history on agentURL showing up to
// limit entries.
func NewHistory(ctx context.Context, agentURL string, limit int) *HistoryModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "WS", Width: 6},
			{Title: "CMD", Width: 4},
			{Title: "Command", Width: 40},
			{Title: "Exit", Width: 8},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &HistoryModel{
		ctx:      ctx,
		agentURL: strings.TrimSuffix(agentURL, "/"),
		limit:    limit,
		table:    t,
		detail:   viewport.New(0, 6),
	}
}

func (m HistoryModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetch(),
		tea.EnterAltScreen,
	)
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		m.detail.Width = m.width - 6
		m.detail.Height = max(m.height/4, 3)

	case historyMsg:
		m.entries = msg
		m.fetchedAt = time.Now()
		m.lastError = ""
		m.table.SetRows(historyRows(m.entries))
		m.detail.SetContent(m.describeSelected())
		return m, m.scheduleFetch()

	case errMsg:
		m.lastError = msg.Error()
		return m, m.scheduleFetch()
	}

	m.table, cmd = m.table.Update(msg)
	m.detail.SetContent(m.describeSelected())
	return m, cmd
}

func historyRows(entries []protocol.HistoryEntry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			statusSymbol(e.Status),
			strconv.Itoa(e.WorkspaceID),
			strconv.Itoa(e.CommandID),
			e.Command,
			exitText(e),
			durationText(e),
		})
	}
	return rows
}

func statusSymbol(status protocol.Status) string {
	switch status {
	case protocol.StatusDone:
		return statusOK.Render("●")
	case protocol.StatusError:
		return statusFailed.Render("∅")
	default:
		return "○"
	}
}

func exitText(e protocol.HistoryEntry) string {
	switch {
	case e.Signal != nil:
		return *e.Signal
	case e.Code != nil:
		return strconv.Itoa(*e.Code)
	default:
		return "-"
	}
}

func durationText(e protocol.HistoryEntry) string {
	if e.TimeTakenMS == nil {
		return "-"
	}
	return (time.Duration(*e.TimeTakenMS * float64(time.Millisecond))).Round(time.Millisecond).String()
}

func (m HistoryModel) describeSelected() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.entries) {
		return dimStyle.Render("No command selected")
	}
	e := m.entries[i]
	return strings.Join([]string{
		fmt.Sprintf("Workspace %d, command %d", e.WorkspaceID, e.CommandID),
		"Command:  " + e.Command,
		"Status:   " + string(e.Status),
		"Exit:     " + exitText(e),
		"Duration: " + durationText(e),
		"Finished: " + e.FinishedAt,
	}, "\n")
}

// --- View ---

func (m HistoryModel) View() string {
	if m.width == 0 {
		return "Loading history..."
	}

	title := fmt.Sprintf("History %s", dimStyle.Render(m.agentURL))
	if !m.fetchedAt.IsZero() {
		title += dimStyle.Render(fmt.Sprintf("  (%d entries, updated %s)", len(m.entries), m.fetchedAt.Format("15:04:05")))
	}

	list := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(title),
			m.table.View(),
		),
	)
	detail := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Details"),
			m.detail.View(),
		),
	)

	parts := []string{list, detail}
	if m.lastError != "" {
		parts = append(parts, statusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [r] Refresh • [↑/↓] Select"))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// --- Commands ---

func (m HistoryModel) scheduleFetch() tea.Cmd {
	ctx, url, limit := m.ctx, m.agentURL, m.limit
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return fetchHistory(ctx, url, limit)
	})
}

func (m HistoryModel) fetch() tea.Cmd {
	ctx, url, limit := m.ctx, m.agentURL, m.limit
	return func() tea.Msg { return fetchHistory(ctx, url, limit) }
}

// FetchHistory reads up to limit journal entries, newest first.
func FetchHistory(ctx context.Context, agentURL string, limit int) ([]protocol.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u := strings.TrimSuffix(agentURL, "/") + "/history"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return nil, fmt.Errorf("GET /history: %s: %s", resp.Status, body.Error)
		}
		return nil, fmt.Errorf("GET /history: %s", resp.Status)
	}

	var entries []protocol.HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}

func fetchHistory(ctx context.Context, agentURL string, limit int) tea.Msg {
	entries, err := FetchHistory(ctx, agentURL, limit)
	if err != nil {
		return errMsg(err)
	}
	return historyMsg(entries)
}

// RunHistory starts the history browser and blocks until the user quits.
func RunHistory(ctx context.Context, agentURL string, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, err := tea.NewProgram(NewHistory(ctx, agentURL, limit), tea.WithContext(ctx)).Run()
	return err
}
