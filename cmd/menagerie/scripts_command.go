package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"menagerie/internal/pipeline"
)

func newScriptsCommand(ctx *commandContext) *cobra.Command {
	var (
		start         int
		limit         int
		batchSize     int
		reverse       bool
		allowInvented bool
		output        string
	)

	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Write simple lines to a review file without rendering audio",
		Long: "Synthesizes simple fact lines in batches and saves them to a JSON file " +
			"keyed by entity identifier. Review or edit the file, then render it with " +
			"`menagerie generate --only-simple --use-scripts <file>`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, closeLogs, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLogs()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, cleanup, err := ctx.newPipeline(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			path := output
			if path == "" {
				path = cfg.Paths.ScriptsFile
			}
			summary, err := p.Run(runCtx, pipeline.Options{
				Start:         start,
				Limit:         limit,
				BatchSize:     batchSize,
				Reverse:       reverse,
				AllowInvented: allowInvented || cfg.Pipeline.AllowInventedFacts,
				ScriptsFile:   path,
				ScriptsOnly:   true,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d scripts to %s (%d skipped)\n",
				summary.Scripted, path, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 1, "1-based catalog index to start from")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entities to process (0 = no limit)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Entities per batch (0 = configured default)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Process the catalog from the end toward the start")
	cmd.Flags().BoolVar(&allowInvented, "allow-invented", false, "Allow model-invented lines for entities with no fact data")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Scripts file to write (default: configured scripts_file)")

	return cmd
}
