package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentic-research/spherepack/internal/config"
	"github.com/agentic-research/spherepack/internal/ingest"
	"github.com/agentic-research/spherepack/internal/logging"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "spherepack",
		Short:         "Estimate how many spheres pack into each molecule of an SDF library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "HCL or JSON config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text or json)")

	root.AddCommand(
		newCountCmd(g),
		newSelectCmd(),
		newFilterCmd(),
		newServeMCPCmd(g),
	)
	return root
}

// loadConfig reads the config file and applies the persistent flags.
func (g *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	return cfg, nil
}

func (g *globalOptions) logger(cfg config.Config, w io.Writer) (*logrus.Logger, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return log, nil
}

// ExitCode maps a command error to the process exit status: 2 for
// configuration errors, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *ingest.ConfigError
	if errors.As(err, &cfgErr) || errors.Is(err, config.ErrInvalid) {
		return 2
	}
	return 1
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitCode(err))
	}
}
