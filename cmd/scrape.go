package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/progress"
	"github.com/showscout/scout-cli/internal/session"
	"github.com/showscout/scout-cli/internal/targets"
)

var scrapeKind string

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Run only the browser driver against one page or feed",
	Long:  "Navigates the target, handles login walls and popups, scrolls feeds to the content plateau, and prints the discovered extraction targets as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		kind, err := targets.ParseKind(scrapeKind)
		if err != nil {
			return err
		}
		if kind == "" {
			kind = targets.InferKind(args[0])
		}

		bus := progress.NewBus(64)
		printerDone := make(chan struct{})
		go func() {
			defer close(printerDone)
			printEvents(bus)
		}()

		src := session.NewInteractive()
		go answerCredentialRequests(src)

		driver := newDriver(newEngine(), session.NewState(nil), src, bus)
		res, err := driver.Scrape(ctx, args[0], kind)

		bus.Close()
		<-printerDone

		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		fmt.Fprintf(os.Stderr, "title: %s\nimages: %d\ntargets: %d\n",
			res.Metadata.Title, res.Metadata.ImageCount, len(res.Targets))

		// Image bytes don't belong on stdout.
		type printableTarget struct {
			SourceURL string           `json:"source_url"`
			Kind      model.TargetKind `json:"kind"`
			MediaType string           `json:"media_type,omitempty"`
			TextLen   int              `json:"text_len,omitempty"`
		}
		out := make([]printableTarget, len(res.Targets))
		for i, t := range res.Targets {
			out[i] = printableTarget{
				SourceURL: t.SourceURL,
				Kind:      t.Kind,
				MediaType: t.MediaType,
				TextLen:   len(t.Text),
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeKind, "kind", "", "target kind (page, photo, group_feed); inferred from the URL when empty")
	rootCmd.AddCommand(scrapeCmd)
}
