package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/manash/banafit/internal/export"
)

var (
	flagLimit   int
	flagSession string
)

func newExportsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List exported results from the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExports(cmd.Context(), app)
		},
	}

	cmd.Flags().IntVarP(&flagLimit, "limit", "l", 20, "maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&flagSession, "session", "", "only show exports from this session")

	return cmd
}

func runExports(ctx context.Context, app *App) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := app.loadConfig()
	if err != nil {
		return err
	}

	ledger, err := app.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var entries []*export.Entry
	if flagSession != "" {
		entries, err = ledger.ListSession(ctx, flagSession)
	} else {
		entries, err = ledger.List(ctx, flagLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to list exports: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(app.Out, "No exports recorded.")
		return nil
	}

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXPORTED\tIMAGE\tCOST\tPATH\tINSTRUCTION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t$%.4f\t%s\t%s\n",
			export.FormatTimestamp(e.ExportedAt), shortID(e.ImageID), e.Cost, e.Path, truncate(e.Prompt, 40))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	summary, err := ledger.TotalCost(ctx)
	if err != nil {
		return fmt.Errorf("failed to total exports: %w", err)
	}
	fmt.Fprintf(app.Out, "\nTotal: $%.4f across %d export(s)\n", summary.TotalCost, summary.ImageCount)
	return nil
}

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig()
			if err != nil {
				return err
			}
			for _, name := range app.Registry.List() {
				caps, _ := app.Registry.Get(name)
				marker := " "
				if name == cfg.Model {
					marker = "*"
				}
				fmt.Fprintf(app.Out, "%s %-30s %-8s %s\n", marker, name, caps.Provider, caps.Description)
			}
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
