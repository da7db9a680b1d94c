package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/mateo19851/http-client-test/pkg/model"
)

const (
	reportWidth = 78
	labelWidth  = 13
	// maxErrorKinds caps the distinct failure messages listed.
	maxErrorKinds = 3
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")). // White
			Background(lipgloss.Color("#7D56F4")). // Purple
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bcbcbc")) // Light Gray

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5f5fd7")). // Purple/Blue
			Bold(true).
			Width(labelWidth)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#22aa22")). // Green
			Padding(0, 1).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#d75f5f")). // Soft red
			Padding(0, 1).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5f5f")) // Soft red

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676")) // Dimmed Gray

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#5f5fd7")).
				Bold(true).
				Padding(0, 1)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// painter applies styles only when colour output is enabled.
type painter bool

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p {
		return text
	}
	return s.Render(text)
}

// RenderReport writes a multi-line report for one probe result.
func RenderReport(w io.Writer, r model.ProbeResult, verdict error, colorEnabled bool) {
	p := painter(colorEnabled)

	fmt.Fprintln(w, p.paint(titleStyle, "connprobe")+" "+p.paint(subtitleStyle, r.Strategy.Description()))
	fmt.Fprintln(w)

	row := func(label, value string) {
		l := fmt.Sprintf("%-*s", labelWidth, label)
		if colorEnabled {
			l = labelStyle.Render(label)
		}
		fmt.Fprintln(w, l+value)
	}

	row("Endpoint", r.Endpoint)
	row("Run", r.RunID)
	row("Backend", r.After.Backend)
	row("Responses", responseSummary(r))
	row("Connections", fmt.Sprintf("%d -> %d (delta %+d)", r.Before.Len(), r.After.Len(), r.ConnectionDelta))
	if by := stateDeltaSummary(r.StateDelta); by != "" {
		row("By state", by)
	}
	row("Duration", r.Duration.Round(time.Millisecond).String())

	if kinds := failureKinds(r); len(kinds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.paint(errorStyle, "Failures"))
		for _, k := range kinds {
			fmt.Fprintln(w, indent.String(wordwrap.String(k, reportWidth-4), 2))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, verdictLine(p, r, verdict))
}

// RenderComparison writes a table with one row per result.
func RenderComparison(w io.Writer, results []model.ProbeResult, verdicts []error, colorEnabled bool) {
	p := painter(colorEnabled)

	rows := make([][]string, 0, len(results))
	for i, r := range results {
		var verdict error
		if i < len(verdicts) {
			verdict = verdicts[i]
		}
		status := "PASS"
		switch {
		case r.Stopped:
			status = "STOPPED"
		case verdict != nil:
			status = "FAIL"
		}
		rows = append(rows, []string{
			string(r.Strategy),
			fmt.Sprintf("%d/%d", len(r.Responses)-r.Failures(), r.Iterations),
			fmt.Sprintf("%d", r.Before.Len()),
			fmt.Sprintf("%d", r.After.Len()),
			fmt.Sprintf("%+d", r.ConnectionDelta),
			status,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STRATEGY", "OK", "BEFORE", "AFTER", "DELTA", "VERDICT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if colorEnabled {
					return tableHeaderStyle
				}
				return tableCellStyle
			}
			if colorEnabled && col == 5 && row >= 0 && row < len(rows) {
				if rows[row][5] == "PASS" {
					return tableCellStyle.Foreground(lipgloss.Color("#22aa22"))
				}
				return tableCellStyle.Foreground(lipgloss.Color("#ff5f5f"))
			}
			return tableCellStyle
		})
	if colorEnabled {
		t = t.BorderStyle(dimStyle)
	}

	if len(results) > 0 {
		fmt.Fprintln(w, p.paint(titleStyle, "connprobe")+" "+p.paint(subtitleStyle, results[0].Endpoint))
	}
	fmt.Fprintln(w, t.Render())

	for i, v := range verdicts {
		if v == nil || i >= len(results) {
			continue
		}
		msg := fmt.Sprintf("%s: %v", results[i].Strategy, v)
		fmt.Fprintln(w, p.paint(errorStyle, wordwrap.String(msg, reportWidth)))
	}
}

func verdictLine(p painter, r model.ProbeResult, verdict error) string {
	switch {
	case r.Stopped:
		return p.paint(failStyle, "STOPPED") + " " + fmt.Sprintf("after %d of %d iterations", len(r.Responses), r.Iterations)
	case verdict != nil:
		msg := strings.ReplaceAll(verdict.Error(), "\n", "; ")
		return p.paint(failStyle, "FAIL") + " " + wordwrap.String(msg, reportWidth-7)
	}
	return p.paint(passStyle, "PASS")
}

func responseSummary(r model.ProbeResult) string {
	failed := r.Failures()
	return fmt.Sprintf("%d/%d succeeded (%d failed)", len(r.Responses)-failed, r.Iterations, failed)
}

func stateDeltaSummary(delta map[model.State]int) string {
	if len(delta) == 0 {
		return ""
	}
	states := make([]model.State, 0, len(delta))
	for s := range delta {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s %+d", s, delta[s]))
	}
	return strings.Join(parts, ", ")
}

// failureKinds groups failed responses by message, most frequent first.
func failureKinds(r model.ProbeResult) []string {
	counts := make(map[string]int)
	for _, resp := range r.Responses {
		if !resp.Success {
			counts[resp.Error]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(counts))
	for m := range counts {
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if counts[msgs[i]] != counts[msgs[j]] {
			return counts[msgs[i]] > counts[msgs[j]]
		}
		return msgs[i] < msgs[j]
	})

	var out []string
	for i, m := range msgs {
		if i == maxErrorKinds {
			out = append(out, fmt.Sprintf("... and %d more kinds", len(msgs)-maxErrorKinds))
			break
		}
		out = append(out, fmt.Sprintf("%dx %s", counts[m], m))
	}
	return out
}
