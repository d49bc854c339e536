package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/model"
)

var (
	runName string
	runURL  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract intelligence for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runName == "" && runURL == "" {
			return eris.New("at least one of --name or --url is required")
		}
		if runName == "" {
			runName = runURL
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rec := a.pipe.Run(ctx, model.Company{Name: runName, Website: runURL})

		zap.L().Info("run complete",
			zap.String("company", runName),
			zap.String("status", string(rec.ScrapeStatus)),
			zap.Int("pages", len(rec.PagesCrawled)),
			zap.Float64("cost_usd", rec.TotalCostUSD),
		)

		switch {
		case ctx.Err() != nil:
			exitCode = 130
		case rec.ScrapeStatus == model.ScrapeStatusFailed:
			exitCode = 1
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "company name")
	runCmd.Flags().StringVar(&runURL, "url", "", "company website URL")
	rootCmd.AddCommand(runCmd)
}
