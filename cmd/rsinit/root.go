package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"arc-framework/rsinit/internal/config"
	"arc-framework/rsinit/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// Target overrides; applied only when the flag is set explicitly.
	flagHost           string
	flagPort           int
	flagReplicaSetID   string
	flagTimeoutSeconds int

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "rsinit",
	Short: "A.R.C. rsinit: MongoDB replica set bootstrap",
	Long: `rsinit turns a freshly started mongod into a working replica set.

It waits for the node to accept commands, initiates the replica set
(a no-op when it already exists with the same identifier), waits for the
node to become primary, and prints the resulting status as JSON.

Running rsinit without a subcommand is the same as "rsinit bootstrap".`,
	SilenceUsage: true,
	RunE:         runBootstrap,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flagHost, "host", "localhost", "host of the node to bootstrap")
	pf.IntVar(&flagPort, "port", 27017, "port of the node to bootstrap")
	pf.StringVar(&flagReplicaSetID, "replica-set-id", "rs0", "replica set identifier")
	pf.IntVar(&flagTimeoutSeconds, "timeout-seconds", 30, "deadline in seconds for each of the readiness and convergence phases")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		} else if cfg.Telemetry.LogLevel != "" {
			initLogger(cfg.Telemetry.LogLevel)
		}

		o := overrides{
			host:           flagHost,
			port:           flagPort,
			replicaSetID:   flagReplicaSetID,
			timeoutSeconds: flagTimeoutSeconds,
			changed:        cmd.Flags().Changed,
		}
		if err := o.apply(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		app, err = buildAppContext(cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serverCmd)
}

// Execute is the entry point called by main. The process exit code encodes
// the failure kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// initLogger writes JSON logs to stderr; stdout carries only command output.
func initLogger(level string) {
	slog.SetDefault(telemetry.NewLogger(os.Stderr, level))
}

// overrides carries the command-line values that take precedence over the
// config file and environment.
type overrides struct {
	host           string
	port           int
	replicaSetID   string
	timeoutSeconds int
	changed        func(name string) bool
}

func (o overrides) apply(cfg *config.Config) error {
	b := &cfg.Bootstrap
	if o.changed("host") {
		b.Target.Host = o.host
	}
	if o.changed("port") {
		b.Target.Port = o.port
	}
	if o.changed("replica-set-id") {
		b.ReplicaSet.ID = o.replicaSetID
	}
	if o.changed("timeout-seconds") {
		if o.timeoutSeconds <= 0 {
			return fmt.Errorf("--timeout-seconds must be positive, got %d", o.timeoutSeconds)
		}
		d := time.Duration(o.timeoutSeconds) * time.Second
		b.ReadinessTimeout = d
		b.ConvergenceTimeout = d
		// The run deadline must leave room for both phases.
		if floor := 2*d + 2*b.CommandTimeout; b.Timeout < floor {
			b.Timeout = floor
		}
	}
	return nil
}
