package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/db"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		gen     generateFlags
		output  string
		persist bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate a dataset and print its full analysis",
		Long:  "analyze generates a dataset, labels anomalous samples, scores the latest sample and evaluates insights. With --persist the run is stored in the configured database.",
		Example: `  vitals analyze
  vitals analyze --days 14 --seed 7 -o yaml
  vitals analyze --persist --config vitals.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if output != "text" && output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output format %q (text|json|yaml)", output)
			}

			var store db.Store
			if persist {
				s, err := openStore(ctx, a)
				if err != nil {
					return err
				}
				defer s.Close()
				store = s
			}

			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			ds, err := engine.GenerateWith(ctx, gen.options(cmd, a))
			if err != nil {
				return err
			}
			res, err := engine.Run(ctx, ds)
			if err != nil {
				return err
			}

			var runID string
			if store != nil {
				rec, err := db.NewRunRecord(ds, res.Detection, res.Report)
				if err != nil {
					return err
				}
				if err := store.SaveRun(ctx, rec); err != nil {
					return fmt.Errorf("failed to persist run: %w", err)
				}
				runID = rec.ID
				a.logger.Info("Run persisted", zap.String("run_id", runID))
			}

			switch output {
			case "json":
				return writeJSON(a.stdout, res.Report)
			case "yaml":
				return writeYAML(a.stdout, res.Report)
			default:
				if err := renderReport(a.stdout, res.Report); err != nil {
					return err
				}
				if runID != "" {
					fmt.Fprintf(a.stdout, "\nRun ID: %s\n", runID)
				}
				return nil
			}
		},
	}
	gen.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text|json|yaml")
	cmd.Flags().BoolVar(&persist, "persist", false, "store the run in the configured database")
	return cmd
}
