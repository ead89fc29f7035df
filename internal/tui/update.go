package tui

import (
	"sort"
	"strconv"
	"time"

	"Go2NetMonitor/internal/model"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		return m, fetchCmd(m.fetch)

	case snapshotMsg:
		m.snapshot = model.Snapshot(msg)
		m.hasData = true
		m.err = nil
		m.lastUpdate = time.Now()
		m.table.SetRows(connectionRows(m.snapshot.Connections))
		return m, m.next()

	case fetchErrMsg:
		m.err = msg.err
		return m, m.next()

	case streamClosedMsg:
		m.closed = true
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// next schedules the following refresh.
func (m Model) next() tea.Cmd {
	if m.updates != nil {
		return waitCmd(m.updates)
	}
	return tickCmd(m.interval)
}

// connectionRows orders connections by first sight, keeping the export order
// for sources that do not carry it.
func connectionRows(conns []model.Connection) []table.Row {
	sorted := make([]model.Connection, len(conns))
	copy(sorted, conns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstSeen.Before(sorted[j].FirstSeen)
	})

	rows := make([]table.Row, len(sorted))
	for i, c := range sorted {
		rows[i] = table.Row{
			c.SrcIP,
			strconv.Itoa(int(c.SrcPort)),
			model.DisplayDomain(c.SrcDomain),
			c.DstIP,
			strconv.Itoa(int(c.DstPort)),
			model.DisplayDomain(c.DstDomain),
			string(c.Protocol),
		}
	}
	return rows
}
