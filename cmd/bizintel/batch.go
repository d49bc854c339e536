package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/batch"
	"github.com/sells-group/bizintel/internal/input"
	"github.com/sells-group/bizintel/internal/model"
)

var batchInput string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract intelligence for a list of companies",
	Long:  "Reads companies from an .xlsx or .csv file and runs the pipeline over them with bounded concurrency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		companies, err := input.ReadCompanies(batchInput)
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			zap.L().Warn("input file contains no companies", zap.String("file", batchInput))
			return nil
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// Mirror batch progress onto the log.
		events, unsubscribe := a.bus.Subscribe(256)
		defer unsubscribe()
		go func() {
			for ev := range events {
				if ev.Status == model.EventProgress {
					zap.L().Info("batch progress",
						zap.Int("completed", ev.Counters["completed"]),
						zap.Int("total", ev.Counters["total"]),
					)
				}
			}
		}()

		sup := batch.NewSupervisor(a.pipe, a.bus, cfg.Batch, cfg.InputQueueCap())
		summary, _ := sup.Run(ctx, companies)

		switch {
		case ctx.Err() != nil:
			exitCode = 130
		case summary.Success == 0 && summary.Partial == 0:
			exitCode = 1
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "companies file (.xlsx or .csv, required)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
