package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"colliderlab/adapters/excel"
	"colliderlab/adapters/learners"
	"colliderlab/adapters/rng"
	"colliderlab/adapters/simulate"
	"colliderlab/app"
	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
	"colliderlab/domain/experiment"
	"colliderlab/internal"
	"colliderlab/internal/config"
	"colliderlab/internal/describe"
	apperrors "colliderlab/internal/errors"
	"colliderlab/internal/report"
	"colliderlab/ui"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "colliderlab",
		Short:         "Collider bias and confounding experiments on simulated data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML experiment file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		newSimulateCmd(&flags),
		newCoefCmd(&flags),
		newRunCmd(&flags),
		newServeCmd(&flags),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// errorLine prefixes application errors with their code
func errorLine(err error) string {
	if apperrors.IsAppError(err) {
		return fmt.Sprintf("error [%s]: %v", apperrors.GetCode(err), err)
	}
	return "error: " + err.Error()
}

// modelKinds checks a --model selection against the learner registry
func modelKinds(requested []string) ([]string, error) {
	known := learners.Kinds()
	out := make([]string, 0, len(requested))
	for _, m := range requested {
		m = strings.ToLower(strings.TrimSpace(m))
		if !slices.Contains(known, m) {
			return nil, apperrors.InvalidParameter(fmt.Sprintf("unknown model %q (want %s)", m, strings.Join(known, ", ")))
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// setup loads configuration and builds the logger every command shares
func setup(flags *globalFlags) (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = strings.ToUpper(flags.logLevel)
	}
	return cfg, internal.NewLogger(internal.ParseLogLevel(level)), nil
}

func newStudyBuilder() *app.StudyBuilder {
	r := rng.NewAdapter()
	return app.NewStudyBuilder(simulate.NewFamilySimulator(r), simulate.NewHappinessSimulator(r))
}

func studyArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	switch args[0] {
	case app.StudyFamily, app.StudyHappiness:
		return nil
	}
	return fmt.Errorf("unknown study %q (want %s or %s)", args[0], app.StudyFamily, app.StudyHappiness)
}

func newSimulateCmd(flags *globalFlags) *cobra.Command {
	var n int
	var seed int64
	var out string
	var within string

	cmd := &cobra.Command{
		Use:   "simulate family|happiness",
		Short: "Simulate a dataset and describe its columns",
		Long: `Simulate one of the two studies, print a summary table with 89% intervals
and histograms, and optionally export the data to a workbook.

Pairwise correlations are printed for all rows and, with --within, for the
rows of one stratum, e.g. --within married=1.

Example: colliderlab simulate family --n 200 --seed 1 --out family.xlsx`,
		Args: studyArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("n") {
				cfg.Family.N = n
			}
			if cmd.Flags().Changed("seed") {
				cfg.Experiment.Seed = seed
				cfg.Happiness.Seed = seed
			}

			study, err := newStudyBuilder().Build(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			summaries, err := describe.Matrix(study.Bundle.Matrix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, fingerprint %s\n\n", study.Name, study.Bundle.Matrix.Rows(), study.Bundle.Fingerprint.Short())
			fmt.Fprint(cmd.OutOrStdout(), describe.Table(summaries))

			if err := printCorrelations(cmd, study.Bundle.Matrix, within); err != nil {
				return err
			}

			if out != "" {
				if err := excel.WriteDataset(out, study.Bundle); err != nil {
					return err
				}
				logger.Info("[simulate] wrote %s", out)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&n, "n", 0, "Family sample size (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "Write the dataset to this .xlsx file")
	cmd.Flags().StringVar(&within, "within", "", "Also correlate within a stratum, as key=value")
	return cmd
}

func printCorrelations(cmd *cobra.Command, m dataset.Matrix, within string) error {
	all, err := describe.Correlations(m, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\ncorrelations, all %d rows\n%s", m.Rows(), describe.CorrelationTable(all))
	if within == "" {
		return nil
	}

	key, raw, ok := strings.Cut(within, "=")
	if !ok {
		return apperrors.InvalidParameter("--within must look like key=value")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return apperrors.InvalidParameter("--within value " + raw + " is not a number")
	}
	rows, err := describe.Within(m, core.VariableKey(key), value)
	if err != nil {
		return apperrors.Wrapf(err, "--within %s", within)
	}
	stratum, err := describe.Correlations(m, rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\ncorrelations, %d rows with %s\n%s", len(rows), within, describe.CorrelationTable(stratum))
	return nil
}

func newCoefCmd(flags *globalFlags) *cobra.Command {
	var withConfounder bool
	var dataPath string

	cmd := &cobra.Command{
		Use:   "coef family|happiness",
		Short: "Print the OLS coefficient table of a study's baseline or confounder model",
		Long: `Fit an unpenalized linear model on all rows and print estimates with
standard errors and 89% intervals.

Example: colliderlab coef family --with-confounder`,
		Args: studyArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			study, err := newStudyBuilder().Build(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			if dataPath != "" {
				m, err := excel.NewDataReader(dataPath).ReadMatrix()
				if err != nil {
					return err
				}
				if study, err = study.WithMatrix(dataPath, m); err != nil {
					return err
				}
			}

			set := study.Baseline
			if withConfounder {
				set = study.Confounder
			}
			svc := app.NewExperimentService(rng.NewAdapter(), cfg, logger)
			coefs, err := svc.InspectCoefficients(study, set.Name)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  (%d rows)\n\n", set.Formula(), study.Bundle.Matrix.Rows())
			printCoefficients(cmd, coefs)
			if study.DAG != nil {
				for _, w := range study.DAG.AuditPredictors(set.Outcome, set.Predictors) {
					fmt.Fprintf(cmd.OutOrStdout(), "\nwarning: conditions on collider %s", w.Collider)
					if len(w.Omitted) > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), " without %v", w.Omitted)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withConfounder, "with-confounder", false, "Use the variable set that adds the confounder")
	cmd.Flags().StringVar(&dataPath, "data", "", "Fit on a .xlsx or .csv file instead of simulating")
	return cmd
}

func printCoefficients(cmd *cobra.Command, coefs []experiment.Coefficient) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "term\tmean\tsd\t5.5%\t94.5%\t")
	for _, c := range coefs {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n", c.Term, c.Estimate, c.StdErr, c.Lower, c.Upper)
	}
	tw.Flush()
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var out string
	var formats []string
	var models []string

	cmd := &cobra.Command{
		Use:   "run [family|happiness|all]",
		Short: "Run the split, tune, evaluate pipeline and write reports",
		Long: `Simulate the selected studies, tune every (variable set, model) workflow
with cross-validation, evaluate on the held-out test rows and write the
Markdown, HTML and XLSX reports to <out>/<run-id>/.

Example: colliderlab run all --config experiment.yaml --out ./reports`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			names := []string{app.StudyFamily, app.StudyHappiness}
			if len(args) == 1 && args[0] != "all" {
				names = []string{args[0]}
			}
			if out != "" {
				cfg.Report.OutDir = out
			}
			if len(formats) > 0 {
				cfg.Report.Formats = formats
			}
			if len(models) > 0 {
				if cfg.Tuning.Models, err = modelKinds(models); err != nil {
					return err
				}
			}
			writers, err := report.Writers(cfg.Report.Formats)
			if err != nil {
				return err
			}

			builder := newStudyBuilder()
			studies := make([]*app.Study, 0, len(names))
			for _, name := range names {
				study, err := builder.Build(cmd.Context(), name, cfg)
				if err != nil {
					return err
				}
				studies = append(studies, study)
			}

			svc := app.NewExperimentService(rng.NewAdapter(), cfg, logger)
			run, err := svc.RunAll(cmd.Context(), studies)
			if err != nil {
				return err
			}
			paths, err := report.WriteAll(cmd.Context(), cfg.Report.OutDir, run, writers)
			if err != nil {
				return err
			}

			printRanking(cmd, run)
			fmt.Fprintf(cmd.OutOrStdout(), "\nrun %s\n", run.RunID)
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Report directory (default from config)")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Report formats: md,html,xlsx")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Model kinds to tune: "+strings.Join(learners.Kinds(), ","))
	return cmd
}

func printRanking(cmd *cobra.Command, run *experiment.RunResult) {
	cmp := report.Compare(run)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "study\trank\tworkflow\t%s\n", run.Metric)
	for _, study := range run.Studies {
		for _, e := range cmp.Ranking(study.Name, run.Metric) {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.4f\n", e.Study, e.Rank, e.Workflow, e.Value)
		}
		for _, f := range study.Failures {
			fmt.Fprintf(tw, "%s\t-\t%s\tfailed (%s)\n", study.Name, f.Workflow.ID, f.Stage)
		}
	}
	tw.Flush()
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var dir string
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse written reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if dir == "" {
				dir = cfg.Report.OutDir
			}
			if port == "" {
				port = cfg.Server.Port
			}
			webApp, err := ui.NewApp(ui.Config{Dir: dir, Port: port}, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on http://localhost:%s\n", dir, port)
			return webApp.Start(cmd.Context(), port)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Report directory (default from config)")
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from config)")
	return cmd
}
