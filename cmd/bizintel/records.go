package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bizintel/internal/model"
	"github.com/sells-group/bizintel/internal/store"
)

var (
	recordsStatus string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored company records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		recs, err := st.ListRecords(ctx, store.RecordFilter{
			Status: model.ScrapeStatus(recordsStatus),
			Limit:  recordsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "filter by status (success, partial, failed)")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 0, "maximum records to return (0 = all)")
	rootCmd.AddCommand(recordsCmd)
}
