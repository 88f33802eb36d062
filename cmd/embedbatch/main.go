// Command embedbatch runs one batch embedding pass over content lacking a current-model embedding,
// then prints per-type coverage. SIGINT/SIGTERM stop it at the next batch boundary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/yungbote/roadmap-backend/internal/app"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	log, err := app.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		return 2
	}
	p := cfg.RAG.BatchParams()

	flag.StringVar(&p.Model, "model", p.Model, "embedding model")
	flag.IntVar(&p.Dims, "dims", p.Dims, "embedding dimensions (0 = model default)")
	flag.IntVar(&p.BatchSize, "batch-size", p.BatchSize, "items per batch")
	flag.DurationVar(&p.ItemInterval, "item-interval", p.ItemInterval, "minimum spacing between embedding calls")
	flag.DurationVar(&p.BatchInterval, "batch-interval", p.BatchInterval, "minimum spacing between batches")
	flag.Float64Var(&p.RatePer1K, "rate-per-1k", p.RatePer1K, "USD per 1k tokens for the cost estimate")
	flag.IntVar(&p.Limit, "limit", 0, "cap the number of items (0 = all)")
	flag.BoolVar(&p.RefreshTemplates, "templates", false, "also re-embed templates from another model")
	flag.BoolVar(&p.DryRun, "dry-run", false, "estimate cost and batches without embedding")
	asJSON := flag.Bool("json", false, "print the run summary as JSON")
	metricsAddr := flag.String("metrics-addr", envutil.String("METRICS_ADDR", ""), "serve /metrics here while the run is active")
	flag.Parse()

	if err := p.Validate(); err != nil {
		log.Error("Invalid run parameters", "error", err)
		return 2
	}

	ctx := context.Background()
	rt, err := app.NewBatchRuntime(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init embedding runtime", "error", err)
		return 1
	}
	defer rt.Close()

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	rt.Metrics.StartServer(metricsCtx, log, *metricsAddr)

	// The run context stays live so an in-flight item finishes; the signal only flips the stop flag.
	var stopping atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if stopping.Swap(true) {
				log.Warn("second signal; exiting immediately")
				os.Exit(130)
			}
			log.Warn("stop requested; finishing the current batch")
		}
	}()

	sum, err := rt.Job.Run(ctx, p, batch.RunOptions{
		ShouldStop: stopping.Load,
		OnBatchDone: func(pr batch.Progress) {
			log.Info("batch done", "batch", pr.Batch, "batches", pr.Batches, "processed", pr.Processed, "total", pr.Total, "failed", pr.Failed)
		},
	})
	if err != nil {
		log.Error("Embedding run failed", "error", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
	} else {
		fmt.Printf("run %s: %d/%d embedded, %d failed, %.1fs, est. $%.4f\n",
			sum.RunID, sum.Success, sum.Total, sum.Failed, sum.DurationSeconds, sum.EstimatedCost)
		if sum.ArtifactKey != "" {
			fmt.Printf("summary: %s\n", sum.ArtifactKey)
		}
	}

	rows, err := rt.Repos.Content.Coverage(dbctx.Of(ctx), p.Model)
	if err != nil {
		log.Warn("coverage unavailable", "error", err)
	} else if !*asJSON {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CONTENT TYPE\tTOTAL\tEMBEDDED\tCOVERAGE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\n", r.ContentType, r.Total, r.Embedded, r.CoveragePct)
		}
		_ = tw.Flush()
	}

	if sum.Stopped {
		return 130
	}
	return 0
}
