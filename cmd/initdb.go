package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/nodeindex"
	"github.com/wegman-software/osmsplit/internal/repo"
	"github.com/wegman-software/osmsplit/internal/store"
)

var dropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the PostgreSQL middle tables",
	Run: func(cmd *cobra.Command, args []string) {
		defer logger.Sync()

		ctx := context.Background()
		st, err := store.New(ctx, cfg)
		if err != nil {
			exitWithError("Failed to connect to database", err)
		}
		defer st.Close()

		if err := st.EnsureTables(ctx, dropExisting); err != nil {
			exitWithError("Failed to create tables", err)
		}
		logger.Get().Info("Middle tables ready", zap.String("schema", cfg.DBSchema))
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <file.osm>",
	Short: "Load an .osm snapshot into the middle tables",
	Long: `Load bulk-imports a snapshot into the PostgreSQL middle tables so
split and batch can run against it. With --flat-nodes, untagged node
coordinates go into a flat file instead of the node table.`,
	Args: cobra.ExactArgs(1),
	Run:  runLoad,
}

func init() {
	initCmd.Flags().BoolVar(&dropExisting, "drop", false, "Drop existing tables first")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.Get()
	defer logger.Sync()
	start := time.Now()

	ctx := context.Background()

	o, err := repo.ReadOSMFile(args[0])
	if err != nil {
		exitWithError("Failed to read snapshot", err)
	}

	var flat *nodeindex.FlatNodes
	if cfg.FlatNodesFile != "" {
		flat, err = nodeindex.Create(cfg.FlatNodesFile, nodeindex.DefaultMaxNodeID)
		if err != nil {
			exitWithError("Failed to create flat node file", err)
		}
		defer flat.Close()
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		exitWithError("Failed to connect to database", err)
	}
	defer st.Close()

	if err := st.EnsureTables(ctx, false); err != nil {
		exitWithError("Failed to create tables", err)
	}

	nodes, ways, rels, err := st.LoadOSM(ctx, o, flat)
	if err != nil {
		exitWithError("Failed to load snapshot", err)
	}

	log.Info("Snapshot loaded",
		zap.Int64("nodes", nodes),
		zap.Int64("ways", ways),
		zap.Int64("relations", rels),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}
