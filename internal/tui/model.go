// Package tui shows a probe run live in the terminal.
package tui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mateo19851/http-client-test/internal/probe"
	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#585858")) // Dark Gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")). // White
			Background(lipgloss.Color("#7D56F4")). // Purple
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bcbcbc")) // Light Gray

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#5f5fd7")). // Purple/Blue
				Bold(true).
				Border(lipgloss.NormalBorder(), false, false, true, false).
				BorderForeground(lipgloss.Color("#585858")). // Dark Gray
				Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676")). // Dimmed Gray
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("#585858")). // Dark Gray
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#22aa22")). // Green
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5f5f")). // Soft red
			Bold(true)

	confirmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffaf5f")). // Orange-amber
			Bold(true)
)

const (
	// recentRows is how many responses the table keeps.
	recentRows    = 8
	maxBarWidth   = 60
	defaultLayout = 80
)

// RunFunc performs the probe run, reporting each response to observer.
type RunFunc func(ctx context.Context, observer probe.Observer) (model.ProbeResult, error)

// responseMsg carries one finished iteration into the program.
type responseMsg struct {
	done     int
	total    int
	response model.Response
}

// doneMsg ends the program with the run's outcome.
type doneMsg struct {
	result model.ProbeResult
	err    error
}

type MainModel struct {
	strategy model.Strategy
	endpoint string
	total    int
	done     int
	failed   int

	progress progress.Model
	spinner  spinner.Model
	table    table.Model
	recent   []model.Response

	cancel   context.CancelFunc
	stopping bool
	finished bool
	result   model.ProbeResult
	err      error
	width    int
}

func InitialModel(strategy model.Strategy, endpoint string, total int, cancel context.CancelFunc) MainModel {
	columns := []table.Column{
		{Title: "#", Width: 6},
		{Title: "Status", Width: 8},
		{Title: "Time", Width: 10},
		{Title: "Error", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(recentRows),
	)

	s := table.DefaultStyles()
	s.Header = tableHeaderStyle
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = subtitleStyle

	pg := progress.New(progress.WithDefaultGradient())
	pg.Width = maxBarWidth

	if cancel == nil {
		cancel = func() {}
	}

	return MainModel{
		strategy: strategy,
		endpoint: endpoint,
		total:    total,
		progress: pg,
		spinner:  sp,
		table:    t,
		cancel:   cancel,
		width:    defaultLayout,
	}
}

// Start runs fn under a live progress view and returns its result once the
// run ends. Pressing q or ctrl+c cancels the run; the partial result and the
// stop error are still returned.
func Start(ctx context.Context, strategy model.Strategy, endpoint string, iterations int, fn RunFunc) (model.ProbeResult, error) {
	if os.Getenv("COLORTERM") == "" {
		os.Setenv("COLORTERM", "truecolor") //nolint:errcheck
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		InitialModel(strategy, endpoint, iterations, cancel),
		tea.WithOutput(os.Stderr),
	)

	outcome := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx, func(done, total int, resp model.Response) {
			p.Send(responseMsg{done: done, total: total, response: resp})
		})
		outcome <- doneMsg{result: res, err: err}
		p.Send(doneMsg{result: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-outcome
		return model.ProbeResult{}, fmt.Errorf("error running tui: %w", err)
	}

	out := <-outcome
	return out.result, out.err
}

func (m MainModel) Init() tea.Cmd {
	return m.spinner.Tick
}
