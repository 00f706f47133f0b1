package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopclerk/shopclerk/internal/bulk"
	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
)

func newBulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Run bulk order jobs",
	}

	cmd.AddCommand(newBulkProcessCmd())
	return cmd
}

func newBulkProcessCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "process <file.csv>",
		Short: "Process a CSV of sku,quantity rows as a bulk order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			items, rowErrs, err := bulk.ParseCSV(f)
			if err != nil {
				return err
			}
			for _, re := range rowErrs {
				fmt.Printf("  row %d skipped: %s\n", re.Row, re.Message)
			}
			if len(items) == 0 {
				return fmt.Errorf("no valid rows in %s", args[0])
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			eng.proc.OnProgress(func(p domain.BulkProgress) {
				fmt.Printf("  %d/%d items processed\n", p.ProcessedItems, p.TotalItems)
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			limits := cfg.Limits.ForMode(mode)
			job, err := eng.proc.Process(ctx, items, bulk.Options{
				SessionID:   "cli",
				MaxQuantity: limits.MaxQuantityPerOrder,
				Mode:        domain.Mode(mode),
			})
			if err != nil {
				return err
			}

			sum := job.Summarize()
			fmt.Printf("\nJob %s: %s\n", job.ID, job.Status)
			fmt.Printf("  fulfilled:    %d\n", sum.Counts[domain.BulkFulfilled])
			fmt.Printf("  partial:      %d\n", sum.Counts[domain.BulkPartial])
			fmt.Printf("  alternatives: %d\n", sum.Counts[domain.BulkAlternatives])
			fmt.Printf("  failed:       %d\n", sum.Counts[domain.BulkItemFailed])
			fmt.Printf("  order value:  $%.2f\n", sum.TotalValue)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "b2b", "pricing mode for the job (b2c, b2b)")

	return cmd
}
