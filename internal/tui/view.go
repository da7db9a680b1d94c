package tui

import (
	"fmt"
	"strings"
)

func (m MainModel) View() string {
	if m.finished {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("connprobe"))
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s  %s", m.strategy, m.endpoint)))
	b.WriteString("\n\n")

	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.done) / float64(m.total)
	}
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(m.progress.ViewAs(ratio))
	b.WriteString(fmt.Sprintf("  %d/%d", m.done, m.total))
	b.WriteString("\n")

	ok := m.done - m.failed
	counts := okStyle.Render(fmt.Sprintf("%d ok", ok))
	if m.failed > 0 {
		counts += "  " + errorStyle.Render(fmt.Sprintf("%d failed", m.failed))
	}
	b.WriteString(counts)
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	footer := "q: stop the run"
	if m.stopping {
		footer = confirmStyle.Render("stopping, taking the final census...")
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	b.WriteString(footerStyle.Width(width).Render(footer))

	return baseStyle.Padding(0, 1).Render(b.String())
}
