package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentic-research/spherepack/internal/config"
	"github.com/agentic-research/spherepack/internal/ingest"
	"github.com/agentic-research/spherepack/internal/progress"
	"github.com/agentic-research/spherepack/internal/schedule"
	"github.com/agentic-research/spherepack/internal/sink"
)

type countOptions struct {
	folder      string
	output      string
	processes   int
	batchSize   int
	radius      float64
	shuffleSeed int64
	taskTimeout time.Duration
	batchDelay  time.Duration
	rejects     string
	progress    bool
}

func newCountCmd(g *globalOptions) *cobra.Command {
	o := &countOptions{}
	c := &cobra.Command{
		Use:   "count",
		Short: "Count packable spheres for every molecule in an SDF file or directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runCount(cmd, g, cfg, o.progress)
		},
	}
	f := c.Flags()
	f.StringVarP(&o.folder, "folder", "f", "", "SDF file or directory of SDF files")
	f.StringVarP(&o.output, "output", "o", "", "Output table (.csv, .db, .sqlite or .jsonl)")
	f.IntVarP(&o.processes, "processes", "p", 4, "Number of worker goroutines")
	f.IntVar(&o.batchSize, "batch-size", schedule.DefaultBatchSize, "Records drawn per batch")
	f.Float64Var(&o.radius, "radius", 1.5, "Sphere radius in Angstrom")
	f.Int64Var(&o.shuffleSeed, "shuffle-seed", 0, "Seed for batch selection (0 uses the clock)")
	f.DurationVar(&o.taskTimeout, "task-timeout", 0, "Per-molecule time limit (0 for none)")
	f.DurationVar(&o.batchDelay, "batch-delay", 0, "Pause between batches")
	f.StringVar(&o.rejects, "rejects", "", "Write failed records to this SDF file")
	f.BoolVar(&o.progress, "progress", false, "Show a progress bar on stderr")
	return c
}

// apply overrides cfg with the flags set on the command line.
func (o *countOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("folder") {
		cfg.Input = o.folder
	}
	if f.Changed("output") {
		cfg.Output = o.output
	}
	if f.Changed("processes") {
		cfg.Workers = o.processes
	}
	if f.Changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if f.Changed("radius") {
		cfg.SphereRadius = o.radius
	}
	if f.Changed("shuffle-seed") {
		cfg.ShuffleSeed = o.shuffleSeed
	}
	if f.Changed("task-timeout") {
		cfg.TaskTimeout = o.taskTimeout.String()
	}
	if f.Changed("batch-delay") {
		cfg.BatchDelay = o.batchDelay.String()
	}
	if f.Changed("rejects") {
		cfg.Rejects = o.rejects
	}
}

func runCount(cmd *cobra.Command, g *globalOptions, cfg config.Config, showBar bool) (err error) {
	log, err := g.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// The host filesystem is rooted at "/", so both paths are made absolute.
	input, err := ingest.Abs(cfg.Input)
	if err != nil {
		return &ingest.ConfigError{Path: cfg.Input, Err: err}
	}
	if cfg.Rejects, err = ingest.Abs(cfg.Rejects); err != nil {
		return fmt.Errorf("rejects path: %w", err)
	}
	cfg.Input = input

	// Reject a bad input before the output file is created.
	fs := ingest.OSFS()
	if _, err := ingest.ResolveInputs(fs, cfg.Input); err != nil {
		return err
	}

	runID := uuid.NewString()
	out, err := sink.Open(cfg.Output, runID)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close output: %w", cerr))
		}
	}()

	observers := schedule.Observers{progress.NewLog(log)}
	var bar *progress.Bar
	if showBar {
		bar = progress.NewBar(cmd.ErrOrStderr())
		observers = append(observers, bar)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &ingest.Driver{
		FS:       fs,
		Sink:     out,
		Config:   cfg,
		Observer: observers,
		Log:      log,
		RunID:    runID,
	}
	sum, err := d.Run(ctx, cfg.Input)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d molecules from %d files into %s: %d succeeded, %d failed.\n",
		sum.Records, sum.Files, cfg.Output, sum.Succeeded, sum.Failed)
	fmt.Fprintf(cmd.OutOrStdout(), "Process completed in %.1fs\n", sum.Seconds)
	return nil
}
