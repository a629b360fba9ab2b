package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/config"
	"github.com/rohmanhakim/catalog-crawler/internal/ledger"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the recorded progress of every leaf of a job.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}
		return PrintStatus(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// PrintStatus renders the progress ledger of cfg's job and the number of
// stored items. It never fetches anything.
func PrintStatus(ctx context.Context, cfg config.Config, out io.Writer) error {
	store, err := storage.Open(ctx, cfg.Store())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store().Backend, err)
	}
	defer store.Close()

	progress := ledger.New(store, &metadata.NoopSink{})
	if _, err := progress.Load(ctx); err != nil {
		return err
	}
	items, err := store.CountItems(ctx)
	if err != nil {
		return err
	}

	counts := map[catalog.FrontierStatus]int{}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Leaf", "Status", "Pages", "Items", "Cursor", "Updated", "Warning"})
	for _, entry := range progress.Snapshot() {
		counts[entry.Status]++
		t.AppendRow(table.Row{
			entry.LeafID,
			entry.Status.String(),
			entry.PagesFetched,
			entry.ItemsYielded,
			entry.Cursor,
			entry.UpdatedAt.Format(time.RFC3339),
			entry.Warning,
		})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d leaves", len(progress.Snapshot())),
		fmt.Sprintf("%d exhausted", counts[catalog.StatusExhausted]),
		"",
		fmt.Sprintf("%d stored", items),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
