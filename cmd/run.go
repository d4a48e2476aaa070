package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/browser"
	"github.com/showscout/scout-cli/internal/dispatch"
	"github.com/showscout/scout-cli/internal/extract"
	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/progress"
	"github.com/showscout/scout-cli/internal/reconcile"
	"github.com/showscout/scout-cli/internal/session"
	"github.com/showscout/scout-cli/internal/store"
	"github.com/showscout/scout-cli/internal/targets"
)

var (
	runFile       string
	runSkipOracle bool
)

var runCmd = &cobra.Command{
	Use:   "run [url[=kind]...]",
	Short: "Run the full extraction pipeline",
	Long:  "Scrapes each target, extracts show listings through the model, reconciles duplicates and geo data, and persists the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		list, err := loadTargets(args)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return eris.New("no targets: pass URLs or --file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.CreateRun(ctx, len(list))
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		zap.L().Info("run started", zap.String("run_id", run.ID), zap.Int("targets", len(list)))

		bus := progress.NewBus(64)
		printerDone := make(chan struct{})
		go func() {
			defer close(printerDone)
			printEvents(bus)
		}()

		src := session.NewInteractive()
		go answerCredentialRequests(src)

		result, stats, err := executeRun(ctx, st, run, list, bus, src)

		bus.Close()
		<-printerDone

		if err != nil {
			_ = st.UpdateRunStatus(context.WithoutCancel(ctx), run.ID, model.RunStatusFailed)
			return err
		}

		formatRunReport(os.Stdout, run, stats, result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "target list file (.txt, .csv, or .xlsx)")
	runCmd.Flags().BoolVar(&runSkipOracle, "skip-oracle", false, "skip geocoder verification of extracted coordinates")
	rootCmd.AddCommand(runCmd)
}

// loadTargets merges the --file list with positional URL arguments.
func loadTargets(args []string) ([]targets.Target, error) {
	var list []targets.Target
	if runFile != "" {
		fromFile, err := targets.LoadFile(runFile)
		if err != nil {
			return nil, err
		}
		list = fromFile
	}

	fromArgs, err := targets.FromArgs(args)
	if err != nil {
		return nil, err
	}
	return append(list, fromArgs...), nil
}

// executeRun drives the three pipeline phases and persists the outcome.
func executeRun(
	ctx context.Context,
	st store.Store,
	run *model.Run,
	list []targets.Target,
	bus *progress.Bus,
	src session.Source,
) (*model.RunResult, reconcile.Stats, error) {
	engine := newEngine()

	// Phase 1: browser discovery.
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusScraping); err != nil {
		return nil, reconcile.Stats{}, err
	}
	bus.Publish(progress.Event{Kind: progress.KindPhase, RunID: run.ID, Phase: "scraping", Message: "scraping targets"})

	var (
		extractTargets []model.ExtractionTarget
		sideResults    []model.RawExtractionResult
	)
	for i, target := range list {
		if err := ctx.Err(); err != nil {
			return nil, reconcile.Stats{}, eris.Wrap(err, "run cancelled")
		}

		bus.Publish(progress.Event{
			Kind: progress.KindItem, RunID: run.ID, Phase: "scraping",
			Message: target.URL, Current: i + 1, Total: len(list),
		})

		res, err := scrapeTarget(ctx, st, engine, src, bus, target)
		if err != nil {
			kind := browser.Kind(err)
			if kind == model.ErrNone {
				kind = model.ErrNavigation
			}
			zap.L().Warn("target failed",
				zap.String("url", target.URL),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			sideResults = append(sideResults, model.RawExtractionResult{
				SourceURL: target.URL,
				ErrorKind: kind,
				ErrorMsg:  err.Error(),
			})
			continue
		}
		extractTargets = append(extractTargets, res.Targets...)

		if target.Kind == model.KindGroupFeed {
			if vr := groupVendor(ctx, engine, target.URL, res.Metadata.Title); vr != nil {
				sideResults = append(sideResults, *vr)
			}
		}
	}

	// Phase 2: parallel model extraction.
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusExtracting); err != nil {
		return nil, reconcile.Stats{}, err
	}
	bus.Publish(progress.Event{Kind: progress.KindPhase, RunID: run.ID, Phase: "extracting",
		Message: fmt.Sprintf("extracting %d targets", len(extractTargets))})

	jobs := make([]model.ExtractionJob, len(extractTargets))
	for i, target := range extractTargets {
		jobs[i] = model.ExtractionJob{
			ID:     uuid.NewString(),
			Index:  i,
			Target: target,
			Prompt: promptFor(target),
		}
	}

	pool := dispatch.NewPool(engine,
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
		dispatch.WithJobTimeout(cfg.Dispatch.JobTimeout()),
		dispatch.WithBatchDelay(cfg.Dispatch.BatchDelay()),
	)
	results, err := pool.Run(ctx, jobs)
	if err != nil {
		return nil, reconcile.Stats{}, eris.Wrap(err, "extraction")
	}
	results = append(results, sideResults...)

	// Phase 3: reconciliation.
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusReconciling); err != nil {
		return nil, reconcile.Stats{}, err
	}
	bus.Publish(progress.Event{Kind: progress.KindPhase, RunID: run.ID, Phase: "reconciling", Message: "reconciling results"})

	rec := reconcile.New(engine, newGeocoder(), reconcile.Config{
		AdjacencyM:     cfg.Reconcile.AdjacencyM,
		GeneralM:       cfg.Reconcile.GeneralM,
		ConfidenceGate: cfg.Reconcile.ConfidenceGate,
		SkipOracle:     cfg.Reconcile.SkipOracle || runSkipOracle,
	})
	result, stats, err := rec.Reconcile(ctx, results)
	if err != nil {
		return nil, stats, eris.Wrap(err, "reconcile")
	}

	run.Tally(result.Shows)
	run.Status = model.RunStatusComplete
	run.FinishedAt = time.Now().UTC()

	if err := st.SaveShows(ctx, run.ID, result.Shows); err != nil {
		return nil, stats, eris.Wrap(err, "save shows")
	}
	if err := st.FinishRun(ctx, run, &result); err != nil {
		return nil, stats, eris.Wrap(err, "finish run")
	}

	return &result, stats, nil
}

// groupNamer resolves the owning group's name from a feed page's title.
type groupNamer interface {
	ExtractGroupName(ctx context.Context, text string) (string, float64, error)
}

// groupVendor asks the model to name the group behind a feed page and
// packages the answer as a vendor result for reconciliation. Returns nil
// when the title is empty or the model could not tell.
func groupVendor(ctx context.Context, namer groupNamer, sourceURL, title string) *model.RawExtractionResult {
	if strings.TrimSpace(title) == "" {
		return nil
	}

	name, confidence, err := namer.ExtractGroupName(ctx, title)
	if err != nil {
		zap.L().Warn("group name extraction failed", zap.String("url", sourceURL), zap.Error(err))
		return nil
	}
	if name == "" {
		return nil
	}

	return &model.RawExtractionResult{
		Success:    true,
		SourceURL:  sourceURL,
		Vendor:     &model.VendorRecord{Name: name, Confidence: confidence},
		Confidence: confidence,
	}
}

// scrapeTarget runs the driver against one target with the site's saved
// session, persisting any newly verified cookies.
func scrapeTarget(
	ctx context.Context,
	st store.Store,
	engine *extract.Engine,
	src session.Source,
	bus *progress.Bus,
	target targets.Target,
) (*browser.ScrapeResult, error) {
	site := siteKey(target.URL)

	saved, err := st.GetSessionCookies(ctx, site)
	if err != nil {
		zap.L().Warn("loading saved session failed", zap.String("site", site), zap.Error(err))
	}
	sess := loadSession(saved)

	driver := newDriver(engine, sess, src, bus)
	res, err := driver.Scrape(ctx, target.URL, target.Kind)
	if err != nil {
		return nil, err
	}

	if sess.Verified() {
		if data, err := json.Marshal(sess.Cookies()); err == nil {
			if err := st.SetSessionCookies(ctx, site, data); err != nil {
				zap.L().Warn("persisting session failed", zap.String("site", site), zap.Error(err))
			}
		}
	}
	return res, nil
}

// formatRunReport writes the run outcome table to w.
func formatRunReport(out io.Writer, run *model.Run, stats reconcile.Stats, result *model.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Targets:\t%d\n", run.Targets)
	_, _ = fmt.Fprintf(w, "Raw results:\t%d (%d failed)\n", stats.RawResults, stats.FailedJobs)
	_, _ = fmt.Fprintf(w, "Shows:\t%d\n", len(result.Shows))
	_, _ = fmt.Fprintf(w, "  Succeeded:\t%d\n", run.Succeeded)
	_, _ = fmt.Fprintf(w, "  Conflicted:\t%d\n", run.Conflicted)
	_, _ = fmt.Fprintf(w, "  Skipped:\t%d\n", run.Skipped)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", run.Failed)
	if len(result.DJs) > 0 {
		_, _ = fmt.Fprintf(w, "DJs:\t%d\n", len(result.DJs))
	}
	if len(result.Vendors) > 0 {
		_, _ = fmt.Fprintf(w, "Vendors:\t%d\n", len(result.Vendors))
	}
	_ = w.Flush()
}
