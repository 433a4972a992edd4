package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/metrics"
)

// ConsoleOptions configure a Console reporter.
type ConsoleOptions struct {
	// Writer receives the output. Defaults to os.Stdout.
	Writer io.Writer
	// Verbose prints one line per result as it arrives.
	Verbose bool
	// Color switches the summary table to a colored style reflecting the
	// run outcome.
	Color bool
	// Title overrides the summary table title.
	Title string
	// MaxErrors caps the rows of the error table. Zero means 10.
	MaxErrors int
}

// Console prints progress lines and a summary table.
type Console struct {
	opts ConsoleOptions

	mu   sync.Mutex
	info core.RunInfo
	seen int
}

var _ core.Reporter = (*Console)(nil)

// NewConsole creates a Console reporter.
func NewConsole(optFns ...func(o *ConsoleOptions)) *Console {
	opts := ConsoleOptions{Writer: os.Stdout, MaxErrors: 10}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 10
	}
	return &Console{opts: opts}
}

func (c *Console) Init(_ context.Context, info core.RunInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = info
	c.seen = 0
	name := ""
	if info.Experiment.Name != "" {
		name = fmt.Sprintf(" (%s)", info.Experiment.Name)
	}
	_, err := fmt.Fprintf(c.opts.Writer, "Run %s%s: %d cases\n", info.RunID, name, info.Total)
	return err
}

func (c *Console) OnResult(_ context.Context, r core.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen++
	if !c.opts.Verbose {
		return nil
	}
	width := len(fmt.Sprint(c.info.Total))
	line := fmt.Sprintf("[%*d/%d] %-9s #%-*d %8s", width, c.seen, c.info.Total, statusText(r.Status), width, r.Index, formatDuration(r.Duration))
	switch {
	case r.Status == core.StatusError:
		line += fmt.Sprintf("  %s: %s", r.Stage, r.Error)
	case r.Status == core.StatusEvaluated:
		line += "  " + r.Judgment.String()
	}
	if r.Category != "" {
		line += "  [" + r.Category + "]"
	}
	_, err := fmt.Fprintln(c.opts.Writer, line)
	return err
}

func (c *Console) Finalize(_ context.Context, state *core.RunState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state == nil {
		return nil
	}
	w := c.opts.Writer
	if _, err := fmt.Fprintf(w, "Run %s %s in %s (%d/%d results)\n", state.ID, state.Status, formatDuration(state.Duration()), len(state.Results), state.Total); err != nil {
		return err
	}
	if state.Error != "" {
		if _, err := fmt.Fprintf(w, "Error: %s\n", state.Error); err != nil {
			return err
		}
	}
	if state.Metrics == nil {
		return nil
	}
	c.renderSummary(state)
	c.renderErrors(state.Results)
	return nil
}

func (c *Console) renderSummary(state *core.RunState) {
	m := state.Metrics
	t := table.NewWriter()
	t.SetOutputMirror(c.opts.Writer)
	title := c.opts.Title
	if title == "" {
		title = "Evaluation " + state.ID
		if state.Experiment.Name != "" {
			title = "Evaluation " + state.Experiment.Name
		}
	}
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Category", "Total", "Passed", "Failed", "Evaluated", "Errors", "Pass Rate", "P50", "P95"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Category", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Evaluated", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Pass Rate", Align: text.AlignRight},
		{Name: "P50", Align: text.AlignRight},
		{Name: "P95", Align: text.AlignRight},
	})

	names := make([]string, 0, len(m.Categories))
	for name := range m.Categories {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t.AppendRow(metricsRow(name, m.Categories[name]))
	}
	if len(names) > 0 {
		t.AppendSeparator()
	}
	t.AppendFooter(metricsRow("overall", m))

	if c.opts.Color {
		switch {
		case m.Errors > 0:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		case m.Failed > 0:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		}
	}
	t.Render()
}

func (c *Console) renderErrors(results []core.Result) {
	var failed []core.Result
	for _, r := range results {
		if r.Status == core.StatusError {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}
	slices.SortFunc(failed, func(a, b core.Result) int { return a.Index - b.Index })

	t := table.NewWriter()
	t.SetOutputMirror(c.opts.Writer)
	t.SetTitle(fmt.Sprintf("Errors (%d)", len(failed)))
	t.AppendHeader(table.Row{"Case", "Stage", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Case", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	for i, r := range failed {
		if i == c.opts.MaxErrors {
			t.AppendFooter(table.Row{"", "", fmt.Sprintf("... %d more", len(failed)-i)})
			break
		}
		t.AppendRow(table.Row{r.Index, r.Stage, r.Error})
	}
	t.Render()
}

func metricsRow(name string, m *core.Metrics) table.Row {
	return table.Row{
		name, m.Total, m.Passed, m.Failed, m.Evaluated, m.Errors,
		fmt.Sprintf("%.1f%%", m.PassRate*100),
		formatMs(m.Latency.P50Ms), formatMs(m.Latency.P95Ms),
	}
}

func statusText(s core.ResultStatus) string {
	switch s {
	case core.StatusPassed:
		return "PASS"
	case core.StatusFailed:
		return "FAIL"
	case core.StatusEvaluated:
		return "EVALUATED"
	default:
		return "ERROR"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func formatMs(ms float64) string {
	return formatDuration(time.Duration(ms * float64(time.Millisecond)))
}

// Summary renders the metrics table of a finished run to w.
func Summary(w io.Writer, state *core.RunState) error {
	if state.Metrics == nil && len(state.Results) > 0 {
		cp := state.Clone()
		cp.Metrics = metrics.Compute(cp.Results)
		state = cp
	}
	return NewConsole(func(o *ConsoleOptions) { o.Writer = w }).Finalize(context.Background(), state)
}
