// Package view prints load results and reports as terminal tables.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"chartengine/internal/chart"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Loads prints one row per load result.
func Loads(w io.Writer, results []chart.LoadResult) {
	t := newTable(w, "Loads")
	t.AppendHeader(table.Row{"Symbol", "Phase", "Cache", "Outcome", "Failed phases"})
	for _, r := range results {
		outcome := "ok"
		switch {
		case r.Cancelled:
			outcome = "cancelled"
		case r.Fatal != nil:
			outcome = "error: " + r.Fatal.Error()
			if r.Retry {
				outcome += " (retry)"
			}
		}
		t.AppendRow(table.Row{r.Symbol, r.Phase, yesNo(r.FromCache), outcome, failedPhases(r.Failed)})
	}
	t.Render()
}

// Report prints one report: a summary, phase timings and recorded errors.
func Report(w io.Writer, r chart.Report) {
	title := "Report"
	if r.ID != "" {
		title += " " + r.ID
	}
	s := newTable(w, title)
	s.AppendRows([]table.Row{
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Duration", r.EndedAt.Sub(r.StartedAt).Round(1e6).String()},
		{"Loads", r.Loads},
		{"Last phase", r.LastPhase},
		{"Cancelled requests", r.CancelledRequests},
		{"Destroyed plots", r.DestroyedPlots},
		{"Failed tasks", r.FailedTasks},
		{"Heap", humanBytes(r.HeapAllocBytes)},
	})
	s.Render()

	if len(r.Phases) > 0 {
		p := newTable(w, "Phase timings (ms)")
		p.AppendHeader(table.Row{"Phase", "Count", "p50", "p95", "p99", "Last"})
		for _, ph := range r.Phases {
			p.AppendRow(table.Row{ph.Phase, ph.Count, ms(ph.P50), ms(ph.P95), ms(ph.P99), ms(ph.Last)})
		}
		p.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
		})
		p.Render()
	}

	if len(r.Errors) > 0 {
		e := newTable(w, "Errors")
		e.AppendHeader(table.Row{"At", "Op", "Message"})
		for _, re := range r.Errors {
			e.AppendRow(table.Row{re.At.Format("15:04:05.000"), re.Op, re.Message})
		}
		e.Render()
	}
}

// Reports prints one summary row per report, newest first as given.
func Reports(w io.Writer, reports []chart.Report) {
	t := newTable(w, "Reports")
	t.AppendHeader(table.Row{"ID", "Started", "Loads", "Last phase", "Errors", "Destroyed", "Failed tasks"})
	for _, r := range reports {
		t.AppendRow(table.Row{r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Loads, r.LastPhase, len(r.Errors), r.DestroyedPlots, r.FailedTasks})
	}
	t.AppendFooter(table.Row{"", "Total", len(reports)})
	t.Render()
}

func failedPhases(failed map[chart.Phase]string) string {
	if len(failed) == 0 {
		return "-"
	}
	names := make([]string, 0, len(failed))
	for p := range failed {
		names = append(names, p.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func ms(v float64) string { return fmt.Sprintf("%.1f", v) }

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
