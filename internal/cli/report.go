package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rohmanhakim/catalog-crawler/internal/scheduler"
	"github.com/rohmanhakim/catalog-crawler/pkg/fileutil"
)

func renderSummary(out io.Writer, summary scheduler.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("run %s: %s", summary.RunID, summary.State))
	t.AppendRows([]table.Row{
		{"Job", summary.Job},
		{"Duration", summary.Duration.String()},
		{"Nodes expanded", summary.NodesExpanded},
		{"Subtrees pruned", summary.SubtreesPruned},
		{"Leaves discovered", summary.LeavesDiscovered},
		{"Leaves skipped", summary.LeavesSkipped},
		{"Leaves exhausted", summary.LeavesExhausted},
		{"Leaves failed", summary.LeavesFailed},
		{"Leaves interrupted", summary.LeavesInterrupted},
		{"Items inserted", summary.ItemsInserted},
		{"Items deduplicated", summary.ItemsDeduplicated},
		{"Items rejected", summary.ItemsRejected},
	})
	if summary.Interrupted {
		t.AppendRow(table.Row{"Interrupted", "yes"})
	}
	if len(summary.Warnings) > 0 {
		t.AppendRow(table.Row{"Warnings", strings.Join(summary.Warnings, "\n")})
	}
	if summary.Error != "" {
		t.AppendRow(table.Row{"Error", summary.Error})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// writeReport stores the summary as <dir>/<job>-<run id>.json.
func writeReport(dir string, summary scheduler.RunSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.json", reportName(summary.Job), summary.RunID)
	path, ferr := fileutil.WriteFileAtomic(dir, name, data)
	if ferr != nil {
		return "", ferr
	}
	return path, nil
}

func reportName(job string) string {
	if job == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, job)
}
