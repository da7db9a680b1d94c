package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mateo19851/http-client-test/pkg/model"
)

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(msg.Width-8, maxBarWidth)
		if m.progress.Width < 10 {
			m.progress.Width = 10
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
		}
		return m, nil

	case responseMsg:
		m.done = msg.done
		if msg.total > 0 {
			m.total = msg.total
		}
		if !msg.response.Success {
			m.failed++
		}
		m.recent = append(m.recent, msg.response)
		if len(m.recent) > recentRows {
			m.recent = m.recent[len(m.recent)-recentRows:]
		}
		m.table.SetRows(responseRows(m.recent))
		return m, nil

	case doneMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func responseRows(responses []model.Response) []table.Row {
	rows := make([]table.Row, 0, len(responses))
	for i := len(responses) - 1; i >= 0; i-- {
		r := responses[i]
		status := "-"
		if r.StatusCode != 0 {
			status = fmt.Sprintf("%d", r.StatusCode)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.Iteration),
			status,
			r.Duration.Round(time.Millisecond).String(),
			r.Error,
		})
	}
	return rows
}
