package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/strrl/brightspots/internal/aggregator"
	"github.com/strrl/brightspots/internal/config"
	"github.com/strrl/brightspots/internal/dashboard"
	"github.com/strrl/brightspots/internal/journal"
	"github.com/strrl/brightspots/internal/transport"
)

var (
	configPath   string
	verbose      bool
	dataSource   string
	deltasFolder string
	recordID     string
	adminMode    bool

	cfg    *config.Config
	logger *zap.Logger
)

// skipSetupAnnotation marks commands that run without a logger or config.
const skipSetupAnnotation = "brightspots/skip-setup"

var rootCmd = &cobra.Command{
	Use:   "brightspots",
	Short: "Survey analytics for the Brightspots dashboard",
	Long: `brightspots loads a survey export, aggregates interest levels, tags and
company assessments, and keeps per-record delta files in sync with a remote folder.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetupAnnotation] == "true" {
			return nil
		}
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = false

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&dataSource, "data", "d", "", "Survey data source (URL or path)")
	flags.StringVar(&deltasFolder, "deltas-folder", "", "Folder holding per-record delta files")
	flags.StringVar(&recordID, "uuid", "", "Record id the session is scoped to")
	flags.BoolVar(&adminMode, "admin", false, "Enable admin mode (write access)")
}

func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataSource = dataSource
	}
	if flags.Changed("deltas-folder") {
		cfg.DeltasFolder = deltasFolder
	}
	if flags.Changed("uuid") {
		cfg.RecordID = recordID
	}
	if flags.Changed("admin") {
		cfg.Admin = adminMode
	}
}

// session is an opened dashboard plus the resources it borrows.
type session struct {
	*dashboard.Dashboard
	client  *transport.Client
	journal *journal.Journal
}

func (s *session) Close() {
	s.Dashboard.Close()
	s.client.Close()
	if err := s.journal.Close(); err != nil {
		logger.Warn("failed to close journal", zap.Error(err))
	}
}

func openSession(ctx context.Context) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.GetLocation()
	if err != nil {
		return nil, err
	}

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
	}

	client := transport.NewClient(transport.Config{Timeout: cfg.GetTimeout()})

	aggCfg := aggregator.DefaultConfig()
	aggCfg.Location = loc

	d, err := dashboard.Open(ctx, dashboard.Options{
		DataSource:   cfg.DataSource,
		ThemesSource: cfg.ThemesSource,
		DeltaFolder:  cfg.DeltasFolder,
		RecordID:     cfg.RecordID,
		Fields:       cfg.Fields,
		Client:       client,
		Aggregator:   aggCfg,
		Journal:      j,
	}, logger)
	if err != nil {
		client.Close()
		if j != nil {
			j.Close()
		}
		return nil, err
	}

	return &session{Dashboard: d, client: client, journal: j}, nil
}
