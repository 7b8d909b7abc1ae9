package cmd

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmsplit/internal/config"
	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/repo"
	"github.com/wegman-software/osmsplit/internal/rules"
	"github.com/wegman-software/osmsplit/internal/split"
	"github.com/wegman-software/osmsplit/internal/store"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osmsplit",
	Short: "Way-splitting and relation-repair engine for OSM edits",
	Long: `osmsplit cuts OSM ways at requested positions and repairs every
relation that referenced them.

Splits are resolved against a fresh snapshot of the way; edits that moved
the way's endpoints in the meantime are reported as conflicts instead of
being applied blindly. Turn restrictions and destination signs keep a
single from/to member next to their via, ordered relations (routes) get
the new chunks inserted in traversal order.

Requests come from a YAML file and results are written as an osmChange
document. The snapshot source is either PostgreSQL middle tables or a
local .osm file (--source).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		logger.Init(verbose, logFile)

		if err := cfg.Validate(); err != nil {
			exitWithError("Invalid configuration", err)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of concurrent split operations (batch)")
	rootCmd.PersistentFlags().StringVar(&cfg.SourceFile, "source", "", "Local .osm snapshot to run against instead of PostgreSQL")
	rootCmd.PersistentFlags().StringVar(&cfg.RulesFile, "rules", "", "Lua file with extra tag cleanup rules")
	rootCmd.PersistentFlags().StringVar(&cfg.FlatNodesFile, "flat-nodes", "", "Flat node coordinate file used by the store")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 0, "Interval for system metrics logging (e.g., 10s, 1m; 0 = off)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}

// openBackend returns the repository and id allocator for the configured
// source. The returned store is nil when running against a local
// snapshot; cleanup must always be called.
func openBackend(ctx context.Context) (split.MapDataRepository, split.IDProvider, *store.Store, func(), error) {
	if cfg.SourceFile != "" {
		mem, err := repo.LoadOSMFile(cfg.SourceFile)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return mem, repo.NewIDSequence(), nil, func() {}, nil
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ids, err := st.NewIDProvider(ctx)
	if err != nil {
		st.Close()
		return nil, nil, nil, nil, err
	}
	return st, ids, st, st.Close, nil
}

// loadCleanupRules loads the configured Lua rules, if any.
func loadCleanupRules() ([]split.TagCleanupRule, func(), error) {
	if cfg.RulesFile == "" {
		return nil, func() {}, nil
	}
	engine, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, nil, err
	}
	return []split.TagCleanupRule{engine}, engine.Close, nil
}

// captureEndpoints fills in missing captured endpoints from the snapshot
// the request is about to run against.
func captureEndpoints(ctx context.Context, r split.MapDataRepository, req split.Request) (split.Request, error) {
	if req.FirstNodeID != 0 && req.LastNodeID != 0 {
		return req, nil
	}
	w, err := r.Way(ctx, req.WayID)
	if err != nil {
		return req, err
	}
	if w == nil || len(w.Nodes) == 0 {
		return req, nil // Apply reports the conflict
	}
	if req.FirstNodeID == 0 {
		req.FirstNodeID = w.Nodes[0].ID
	}
	if req.LastNodeID == 0 {
		req.LastNodeID = w.Nodes[len(w.Nodes)-1].ID
	}
	return req, nil
}
