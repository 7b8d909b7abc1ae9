package cmd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/metrics"
	"github.com/wegman-software/osmsplit/internal/requestfile"
	"github.com/wegman-software/osmsplit/internal/split"
)

var batchCommit bool

var batchCmd = &cobra.Command{
	Use:   "batch <requests.yaml>",
	Short: "Apply many split requests concurrently",
	Long: `Batch applies the requests from a YAML file with a pool of workers
(--workers) and writes one combined osmChange document.

Unlike split, conflicting requests are skipped and counted instead of
aborting the run; only infrastructure failures stop it. Requests must
target distinct ways, results for the same way are not merged.`,
	Args: cobra.ExactArgs(1),
	Run:  runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&cfg.OutputFile, "out", "o", "", "Write the osmChange document to this file instead of stdout")
	batchCmd.Flags().BoolVar(&batchCommit, "commit", false, "Write the updates back to the PostgreSQL middle tables")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) {
	log := logger.Get()
	defer logger.Sync()
	start := time.Now()

	reqs, err := requestfile.Load(args[0])
	if err != nil {
		exitWithError("Failed to load split requests", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mapData, ids, st, cleanup, err := openBackend(ctx)
	if err != nil {
		exitWithError("Failed to open data source", err)
	}
	defer cleanup()

	if batchCommit && st == nil {
		exitWithError("--commit requires a PostgreSQL source", nil)
	}

	extra, closeRules, err := loadCleanupRules()
	if err != nil {
		exitWithError("Failed to load cleanup rules", err)
	}
	defer closeRules()

	if cfg.MetricsInterval > 0 {
		go metrics.NewCollector(cfg.MetricsInterval, log).Start(ctx)
	}

	action := split.NewAction(mapData, ids, extra...)

	log.Info("Starting batch",
		zap.Int("requests", len(reqs)),
		zap.Int("workers", cfg.Workers))

	results := make([]*split.ElementUpdates, len(reqs))
	var applied, conflicts atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			req, err := captureEndpoints(gctx, mapData, req)
			if err != nil {
				return err
			}
			res, err := action.Apply(gctx, req)
			if err != nil {
				if split.IsConflict(err) {
					conflicts.Add(1)
					log.Warn("Skipping conflicting split",
						zap.Int64("way", int64(req.WayID)),
						zap.Error(err))
					return nil
				}
				return err
			}
			results[i] = res
			applied.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitWithError("Batch failed", err)
	}

	if batchCommit {
		for _, res := range results {
			if res == nil {
				continue
			}
			if err := st.ApplyUpdates(ctx, res); err != nil {
				exitWithError("Failed to commit updates", err)
			}
		}
	}

	if err := writeChange(results); err != nil {
		exitWithError("Failed to write osmChange document", err)
	}

	log.Info("Batch finished",
		zap.Int64("applied", applied.Load()),
		zap.Int64("conflicts", conflicts.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}
