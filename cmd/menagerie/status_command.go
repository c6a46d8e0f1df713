package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"menagerie/internal/artifact"
	"menagerie/internal/catalog"
	"menagerie/internal/manifest"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog completion and recent render history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			resolver, err := catalog.Load(catalog.Sources{
				CatalogFile:     cfg.Paths.CatalogFile,
				RichCatalogFile: cfg.Paths.RichCatalogFile,
				FactsFile:       cfg.Paths.FactsFile,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			layout := artifact.NewLayout(cfg.Paths.AudioRoot)
			entities := resolver.Entities()

			fmt.Fprintf(out, "Catalog: %d entities across %d categories\n\n",
				len(entities), len(resolver.Categories()))
			fmt.Fprintln(out, renderFieldTable(layout, entities))
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderCategoryTable(layout, resolver))

			if recent > 0 {
				if history := renderHistoryTable(cmd, cfg.Paths.ManifestPath, recent); history != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, history)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 10, "Recent render history rows to show (0 = none)")
	return cmd
}

func renderFieldTable(layout artifact.Layout, entities []catalog.Entity) string {
	identifiers := make([]string, len(entities))
	for i, e := range entities {
		identifiers[i] = e.ID()
	}
	titler := cases.Title(language.English)

	rows := make([][]string, 0, len(artifact.AllFields)+1)
	for _, field := range artifact.AllFields {
		complete := artifact.CountComplete(layout, identifiers, []artifact.Field{field})
		rows = append(rows, []string{
			titler.String(string(field)),
			strconv.Itoa(complete),
			strconv.Itoa(len(identifiers) - complete),
		})
	}
	complete := artifact.CountComplete(layout, identifiers, artifact.AllFields)
	rows = append(rows, []string{"All", strconv.Itoa(complete), strconv.Itoa(len(identifiers) - complete)})

	return renderTable([]string{"Field", "Complete", "Missing"}, rows, 1)
}

func renderCategoryTable(layout artifact.Layout, resolver *catalog.Resolver) string {
	var rows [][]string
	for _, category := range resolver.Categories() {
		entities := resolver.FilterCategory(category)
		identifiers := make([]string, len(entities))
		for i, e := range entities {
			identifiers[i] = e.ID()
		}
		complete := artifact.CountComplete(layout, identifiers, artifact.AllFields)
		rows = append(rows, []string{
			category,
			strconv.Itoa(complete),
			strconv.Itoa(len(identifiers)),
		})
	}
	return renderTable([]string{"Category", "Complete", "Total"}, rows, 1)
}

// renderHistoryTable reads the manifest; a missing or unreadable database is
// not an error for status, it just means no history to show.
func renderHistoryTable(cmd *cobra.Command, manifestPath string, limit int) string {
	if _, err := os.Stat(manifestPath); err != nil {
		return ""
	}
	store, err := manifest.Open(cmd.Context(), manifestPath)
	if err != nil {
		return ""
	}
	defer store.Close()

	renders, err := store.RecentRenders(cmd.Context(), limit)
	if err != nil || len(renders) == 0 {
		return ""
	}

	rows := make([][]string, 0, len(renders))
	for _, render := range renders {
		rows = append(rows, []string{
			render.RenderedAt.Local().Format("2006-01-02 15:04"),
			render.Identifier,
			string(render.Field),
			formatBytes(render.Bytes),
			render.Duration.Truncate(time.Millisecond).String(),
		})
	}
	return renderTable([]string{"When", "Entity", "Field", "Size", "Took"}, rows, 3)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// stdoutIsTerminal gates color and live output decisions.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
