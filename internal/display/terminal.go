package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	statusStopped = "Stopped"
	statusRunning = "Logging..."

	defaultPanelView = 8
	clearScreen      = "\x1b[H\x1b[2J"
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true)
	StoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	RunningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ChartStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type TerminalOption func(*Terminal)

func WithChartSize(width, height int) TerminalOption {
	return func(t *Terminal) { t.chart = Chart{Width: width, Height: height} }
}

// WithPanel sets the scrollback capacity and how many lines are shown.
func WithPanel(capacity, visible int) TerminalOption {
	return func(t *Terminal) {
		t.panel = NewPanel(capacity)
		if visible > 0 {
			t.visible = visible
		}
	}
}

// WithClearScreen makes every redraw start from a cleared screen.
func WithClearScreen(clear bool) TerminalOption {
	return func(t *Terminal) { t.clear = clear }
}

func withNow(now func() time.Time) TerminalOption {
	return func(t *Terminal) { t.now = now }
}

// Terminal renders the live view. It is not safe for concurrent use; drive
// it through a Queue.
type Terminal struct {
	out     io.Writer
	series  Series
	panel   *Panel
	visible int
	chart   Chart
	clear   bool
	now     func() time.Time

	running  bool
	endpoint string
	message  string
	isError  bool
}

func NewTerminal(out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		out:     out,
		panel:   NewPanel(DefaultPanelLines),
		visible: defaultPanelView,
		chart:   Chart{Width: DefaultChartWidth, Height: DefaultChartHeight},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update plots a sample and adds it to the log panel.
func (t *Terminal) Update(elapsed time.Duration, value float64) {
	t.series.Add(elapsed, value)
	t.panel.Append(fmt.Sprintf("%s  %8.1fs  %.4f", t.now().Format("2006-01-02 15:04:05"), elapsed.Seconds(), value))
	t.Redraw()
}

// SetStatus changes the status line. A non-empty message is shown below it.
func (t *Terminal) SetStatus(running bool, endpoint, message string, isError bool) {
	t.running = running
	t.endpoint = endpoint
	t.message = message
	t.isError = isError
	t.Redraw()
}

// Logf adds a line to the log panel.
func (t *Terminal) Logf(format string, args ...any) {
	t.panel.Append(fmt.Sprintf(format, args...))
	t.Redraw()
}

func (t *Terminal) Series() *Series {
	return &t.series
}

func (t *Terminal) Panel() *Panel {
	return t.panel
}

func (t *Terminal) Render() string {
	status := StoppedStyle.Render(statusStopped)
	if t.running {
		status = RunningStyle.Render(statusRunning)
	}
	endpoint := t.endpoint
	if endpoint == "" {
		endpoint = "no port selected"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		TitleStyle.Render("templogger"), "  ", status, "  ", DimStyle.Render(endpoint))

	parts := []string{header}
	if t.message != "" {
		if t.isError {
			parts = append(parts, ErrorStyle.Render(t.message))
		} else {
			parts = append(parts, t.message)
		}
	}
	parts = append(parts,
		ChartStyle.Render(t.chart.Render(&t.series)),
		strings.Join(t.panel.View(t.visible), "\n"),
		DimStyle.Render("t: start/stop   p <endpoint>: select port   q: quit"),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (t *Terminal) Redraw() {
	if t.out == nil {
		return
	}
	if t.clear {
		fmt.Fprint(t.out, clearScreen)
	}
	fmt.Fprintln(t.out, t.Render())
}
