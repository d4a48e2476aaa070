package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/reconcile"
	"github.com/showscout/scout-cli/internal/store"
)

var (
	geofixRunID      string
	geofixSkipOracle bool
)

var geofixCmd = &cobra.Command{
	Use:   "geofix",
	Short: "Re-run geo completion over stored records",
	Long:  "Loads a run's show records, fills missing address fields through the model in batches, verifies coordinates against the geocoding oracle, and saves the results back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID := geofixRunID
		if runID == "" {
			runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 1})
			if err != nil {
				return eris.Wrap(err, "geofix: list runs")
			}
			if len(runs) == 0 {
				return eris.New("geofix: no runs found")
			}
			runID = runs[0].ID
		}

		shows, err := st.ListShows(ctx, runID, store.ShowFilter{})
		if err != nil {
			return eris.Wrap(err, "geofix: load shows")
		}
		if len(shows) == 0 {
			fmt.Fprintln(os.Stderr, "No shows to fix.")
			return nil
		}

		engine := newEngine()
		shows = reconcile.CompleteGeoBulk(ctx, engine, shows, cfg.Reconcile.ConfidenceGate)

		if !geofixSkipOracle && !cfg.Reconcile.SkipOracle {
			geocoder := newGeocoder()
			for i := range shows {
				if err := reconcile.VerifyCoordinates(ctx, geocoder, &shows[i],
					cfg.Reconcile.GeneralM, cfg.Reconcile.ConfidenceGate); err != nil {
					if ctx.Err() != nil {
						return eris.Wrap(err, "geofix: cancelled")
					}
					zap.L().Warn("oracle verification failed",
						zap.String("venue", shows[i].Venue),
						zap.Error(err),
					)
				}
			}
		}

		if err := st.SaveShows(ctx, runID, shows); err != nil {
			return eris.Wrap(err, "geofix: save shows")
		}

		fixed, conflicted := 0, 0
		for _, s := range shows {
			switch s.Status {
			case model.StatusGeoFixed:
				fixed++
			case model.StatusConflict:
				conflicted++
			}
		}
		fmt.Printf("Run %s: %d shows, %d geo-fixed, %d conflicted\n", runID, len(shows), fixed, conflicted)
		return nil
	},
}

func init() {
	geofixCmd.Flags().StringVar(&geofixRunID, "run", "", "run ID (default: most recent run)")
	geofixCmd.Flags().BoolVar(&geofixSkipOracle, "skip-oracle", false, "skip geocoder verification")
	rootCmd.AddCommand(geofixCmd)
}
