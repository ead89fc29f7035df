package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"Go2NetMonitor/internal/model"
	"Go2NetMonitor/internal/query"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

func (m Model) View() string {
	title := titleStyle.Render(fmt.Sprintf("Go2NetMonitor - %s", m.source))

	totals := fmt.Sprintf("Total Packets: %d\nTotal Bytes: %d\nConnections: %d",
		m.snapshot.TotalPackets, m.snapshot.TotalBytes, len(m.snapshot.Connections))
	if m.snapshot.UntrackedObservations > 0 {
		totals += fmt.Sprintf("\nUntracked: %d", m.snapshot.UntrackedObservations)
	}
	if !m.snapshot.Timestamp.IsZero() {
		totals += "\nExported: " + m.snapshot.Timestamp.Local().Format("15:04:05")
	}
	totalsBox := infoStyle.Render(totals)

	protoBox := infoStyle.Render("Protocols:\n" + strings.Join(protocolLines(m.snapshot.ProtocolCounts), "\n"))

	connBox := infoStyle.Render("Connections\n" + m.table.View())

	body := lipgloss.JoinVertical(lipgloss.Left,
		title,
		lipgloss.JoinHorizontal(lipgloss.Top, totalsBox, protoBox),
		connBox,
	)

	if status := m.status(); status != "" {
		body += "\n" + status
	}
	return body + "\nPress q to quit."
}

func (m Model) status() string {
	switch {
	case m.closed:
		return errStyle.Render("Snapshot stream closed.")
	case m.err != nil && errors.Is(m.err, query.ErrNotAvailable):
		return "Waiting for data: " + m.err.Error()
	case m.err != nil:
		return errStyle.Render("Error: " + m.err.Error())
	case !m.hasData:
		return "Waiting for data..."
	}
	return ""
}

func protocolLines(counts map[model.Protocol]uint64) []string {
	if len(counts) == 0 {
		return []string{"Waiting for data..."}
	}
	protos := make([]string, 0, len(counts))
	for p := range counts {
		protos = append(protos, string(p))
	}
	sort.Strings(protos)

	lines := make([]string, len(protos))
	for i, p := range protos {
		lines[i] = fmt.Sprintf("%s: %d", p, counts[model.Protocol(p)])
	}
	return lines
}
