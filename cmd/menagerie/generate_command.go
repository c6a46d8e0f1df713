package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"menagerie/internal/artifact"
	"menagerie/internal/pipeline"
	"menagerie/internal/services"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		start         int
		limit         int
		batchSize     int
		resume        bool
		reverse       bool
		redoAll       bool
		wipe          bool
		dryRun        bool
		category      string
		onlyName      bool
		onlySimple    bool
		aiSimple      bool
		allowInvented bool
		useScripts    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render audio for catalog entities",
		Long: "Walks the catalog in batches and renders the missing audio artifacts. " +
			"Completion is derived from the files on disk, so rerunning the same " +
			"command after an interruption picks up where it left off.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if onlyName && onlySimple {
				return errors.New("--only-name and --only-simple are mutually exclusive")
			}

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

			var fields []artifact.Field
			switch {
			case onlyName:
				fields = []artifact.Field{artifact.FieldName}
			case onlySimple:
				fields = []artifact.Field{artifact.FieldSimple}
			}

			opts := pipeline.Options{
				Start:          start,
				Limit:          limit,
				BatchSize:      batchSize,
				Reverse:        reverse,
				Resume:         resume,
				RedoAll:        redoAll,
				Wipe:           wipe,
				DryRun:         dryRun,
				Category:       category,
				Fields:         fields,
				UseModelSimple: aiSimple,
				AllowInvented:  allowInvented || cfg.Pipeline.AllowInventedFacts,
				ScriptsFile:    useScripts,
			}

			summary, err := p.Run(runCtx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Complete: %d rendered, %d skipped, %d failed\n",
				summary.Rendered, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return services.Wrap(services.ErrTransient, "generate",
					fmt.Sprintf("%d renders failed; rerun to retry", summary.Failed), nil)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 1, "1-based catalog index to start from")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entities to process (0 = no limit)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Entities per batch (0 = configured default)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Skip ahead to the first entity missing audio")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Process the catalog from the end toward the start")
	cmd.Flags().BoolVar(&redoAll, "redo-all", false, "Re-render even when audio already exists")
	cmd.Flags().BoolVar(&wipe, "wipe", false, "Delete all rendered audio before generating")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Synthesize and log scripts without rendering audio")
	cmd.Flags().StringVar(&category, "category", "", "Only process entities in this category (case-insensitive)")
	cmd.Flags().BoolVar(&onlyName, "only-name", false, "Only render name audio")
	cmd.Flags().BoolVar(&onlySimple, "only-simple", false, "Only render simple fact audio")
	cmd.Flags().BoolVar(&aiSimple, "ai-simple", false, "Write simple lines with the generative model instead of curated facts")
	cmd.Flags().BoolVar(&allowInvented, "allow-invented", false, "Allow model-invented lines for entities with no fact data")
	cmd.Flags().StringVar(&useScripts, "use-scripts", "", "Read reviewed simple lines from this scripts file")

	return cmd
}
