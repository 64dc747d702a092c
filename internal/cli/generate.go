package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/signal"
)

// generateFlags are shared by generate and analyze. Unset flags fall back to
// the generator section of the configuration.
type generateFlags struct {
	days            int
	samplesPerDay   int
	seed            int64
	outlierFraction float64
}

func (f *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.days, "days", 30, "number of days to synthesize")
	cmd.Flags().IntVar(&f.samplesPerDay, "samples-per-day", 24, "samples per day")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "random seed")
	cmd.Flags().Float64Var(&f.outlierFraction, "outlier-fraction", signal.DefaultOutlierFraction, "share of samples receiving an injected excursion")
}

func (f *generateFlags) options(cmd *cobra.Command, a *app) signal.Options {
	g := a.cfg.Generator
	opts := signal.Options{
		Days:            g.Days,
		SamplesPerDay:   g.SamplesPerDay,
		Seed:            g.Seed,
		OutlierFraction: g.OutlierFraction,
	}
	if cmd.Flags().Changed("days") {
		opts.Days = f.days
	}
	if cmd.Flags().Changed("samples-per-day") {
		opts.SamplesPerDay = f.samplesPerDay
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = f.seed
	}
	if cmd.Flags().Changed("outlier-fraction") {
		opts.OutlierFraction = f.outlierFraction
	}
	return opts
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		gen    generateFlags
		output string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic vitals dataset",
		Example: `  vitals generate --days 7 --seed 1
  vitals generate -o json > dataset.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			ds, err := engine.GenerateWith(cmd.Context(), gen.options(cmd, a))
			if err != nil {
				return err
			}

			switch output {
			case "json":
				return writeJSON(a.stdout, ds)
			case "yaml":
				return writeYAML(a.stdout, ds)
			case "table":
				return renderSamples(a.stdout, ds, limit)
			default:
				return fmt.Errorf("unsupported output format %q (json|yaml|table)", output)
			}
		},
	}
	gen.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table|json|yaml")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last N rows in table output (0 = all)")
	return cmd
}
