// Package commands implements the dataloader command line.
package commands

import (
	"fmt"
	"os"

	"github.com/asaidimu/go-dataloader/internal/config"
	"github.com/asaidimu/go-dataloader/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by the commands of one invocation.
type app struct {
	configFile string
	dir        string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the dataloader command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dataloader",
		Short: "Compile and run data-loading descriptors",
		Long: `dataloader turns a declarative descriptor (table, columns, filters, sort and
pagination) into PostgREST query calls, and runs it against a Supabase project
or directly against SQLite or Postgres.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default .dataloader.yaml)")
	root.PersistentFlags().StringVar(&a.dir, "dir", "", "directory holding .dataloader.yaml, .env and .env.local")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCompileCommand(a),
		newQueryCommand(a),
		newEnqueueCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line with os.Args.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		ui.PrintError(os.Stderr, "%v", err)
		return err
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.dir, a.configFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Verbose = true
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// newLogger returns a development logger at debug level when verbose is set
// and a production logger otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
