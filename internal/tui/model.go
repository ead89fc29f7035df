// Package tui renders exported metrics as a live terminal dashboard.
package tui

import (
	"context"
	"time"

	"Go2NetMonitor/internal/model"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultPollInterval matches the refresh rate of the default CSV export.
const DefaultPollInterval = time.Second

// FetchFunc reads the latest snapshot from an export.
type FetchFunc func(ctx context.Context) (model.Snapshot, error)

type tickMsg time.Time

type snapshotMsg model.Snapshot

type fetchErrMsg struct{ err error }

type streamClosedMsg struct{}

// Model is the bubbletea model of the dashboard. It is fed either by polling
// a FetchFunc or by a channel of pushed snapshots.
type Model struct {
	source   string
	fetch    FetchFunc
	interval time.Duration
	updates  <-chan model.Snapshot

	snapshot   model.Snapshot
	hasData    bool
	err        error
	closed     bool
	lastUpdate time.Time
	table      table.Model
}

// NewPollingModel refreshes by calling fetch every interval.
func NewPollingModel(source string, fetch FetchFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	m := newModel(source)
	m.fetch = fetch
	m.interval = interval
	return m
}

// NewStreamModel refreshes whenever a snapshot arrives on updates.
func NewStreamModel(source string, updates <-chan model.Snapshot) Model {
	m := newModel(source)
	m.updates = updates
	return m
}

func newModel(source string) Model {
	columns := []table.Column{
		{Title: "Source IP", Width: 18},
		{Title: "Port", Width: 6},
		{Title: "Source Domain", Width: 24},
		{Title: "Destination IP", Width: 18},
		{Title: "Port", Width: 6},
		{Title: "Destination Domain", Width: 24},
		{Title: "Proto", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{source: source, table: t}
}

func (m Model) Init() tea.Cmd {
	if m.updates != nil {
		return waitCmd(m.updates)
	}
	return fetchCmd(m.fetch)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(fetch FetchFunc) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := fetch(ctx)
		if err != nil {
			return fetchErrMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func waitCmd(updates <-chan model.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}
