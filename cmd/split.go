package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/osc"
	"github.com/wegman-software/osmsplit/internal/requestfile"
	"github.com/wegman-software/osmsplit/internal/split"
)

var commit bool

var splitCmd = &cobra.Command{
	Use:   "split <requests.yaml>",
	Short: "Apply split requests sequentially",
	Long: `Split applies the requests from a YAML file one after another and
writes the resulting osmChange document to stdout or --out.

The run stops at the first failure. A conflict (the way changed since
the split was proposed, or was deleted) exits with an error without
touching anything. With --commit the updates are also written back to
the PostgreSQL middle tables.`,
	Args: cobra.ExactArgs(1),
	Run:  runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&cfg.OutputFile, "out", "o", "", "Write the osmChange document to this file instead of stdout")
	splitCmd.Flags().BoolVar(&commit, "commit", false, "Write the updates back to the PostgreSQL middle tables")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) {
	log := logger.Get()
	defer logger.Sync()
	start := time.Now()

	reqs, err := requestfile.Load(args[0])
	if err != nil {
		exitWithError("Failed to load split requests", err)
	}

	ctx := context.Background()
	mapData, ids, st, cleanup, err := openBackend(ctx)
	if err != nil {
		exitWithError("Failed to open data source", err)
	}
	defer cleanup()

	if commit && st == nil {
		exitWithError("--commit requires a PostgreSQL source", nil)
	}

	extra, closeRules, err := loadCleanupRules()
	if err != nil {
		exitWithError("Failed to load cleanup rules", err)
	}
	defer closeRules()

	action := split.NewAction(mapData, ids, extra...)

	results := make([]*split.ElementUpdates, 0, len(reqs))
	for _, req := range reqs {
		req, err := captureEndpoints(ctx, mapData, req)
		if err != nil {
			exitWithError("Failed to read way", err)
		}

		counts := req.NewElementCounts()
		log.Info("Applying split",
			zap.Int64("way", int64(req.WayID)),
			zap.Int("splits", len(req.Splits)),
			zap.Int("new_nodes", counts.Nodes),
			zap.Int("new_ways", counts.Ways))

		res, err := action.Apply(ctx, req)
		if err != nil {
			if split.IsConflict(err) {
				exitWithError("Split conflicts with current map state", err)
			}
			exitWithError("Split failed", err)
		}
		results = append(results, res)
	}

	if commit {
		for _, res := range results {
			if err := st.ApplyUpdates(ctx, res); err != nil {
				exitWithError("Failed to commit updates", err)
			}
		}
	}

	if err := writeChange(results); err != nil {
		exitWithError("Failed to write osmChange document", err)
	}

	log.Info("Splits applied",
		zap.Int("requests", len(reqs)),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}

func writeChange(results []*split.ElementUpdates) error {
	var w io.Writer = os.Stdout
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return osc.Write(w, "osmsplit", results...)
}
