package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/store"
	"github.com/showscout/scout-cli/pkg/notion"
)

var (
	exportRunID  string
	exportReview bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records to Notion",
	Long:  "Pushes a run's records to the configured Notion database. With --review, only conflict/skipped/error records and low-confidence results go out.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Notion.Token == "" {
			return eris.New("notion token is required (SCOUT_NOTION_TOKEN)")
		}
		if cfg.Notion.ReviewDB == "" {
			return eris.New("notion review DB ID is required (SCOUT_NOTION_REVIEW_DB)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID := exportRunID
		if runID == "" {
			runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 1})
			if err != nil {
				return eris.Wrap(err, "export: list runs")
			}
			if len(runs) == 0 {
				return eris.New("export: no runs found")
			}
			runID = runs[0].ID
		}

		shows, err := st.ListShows(ctx, runID, store.ShowFilter{})
		if err != nil {
			return eris.Wrap(err, "export: load shows")
		}

		// --review narrows to the conflict/skipped/error queue plus
		// low-confidence records; otherwise every record goes out.
		gate := 1.01
		if exportReview {
			gate = cfg.Reconcile.ConfidenceGate
		}

		client := notion.NewClient(cfg.Notion.Token)
		created, err := notion.ExportReview(ctx, client, cfg.Notion.ReviewDB, shows, gate)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("export complete",
			zap.String("run_id", runID),
			zap.Int("created", created),
			zap.Bool("review_only", exportReview),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run ID (default: most recent run)")
	exportCmd.Flags().BoolVar(&exportReview, "review", false, "export only records needing review")
	rootCmd.AddCommand(exportCmd)
}
