package report

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

// MarkdownWriter writes report.md
type MarkdownWriter struct{}

var _ ports.ReportWriter = MarkdownWriter{}

// Format implements ports.ReportWriter
func (MarkdownWriter) Format() string { return "md" }

// Write implements ports.ReportWriter
func (w MarkdownWriter) Write(ctx context.Context, dir string, run *experiment.RunResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report.md")
	if err := os.WriteFile(path, RenderMarkdown(run), 0o644); err != nil {
		return "", apperrors.ReportError("write markdown report", err)
	}
	return path, nil
}

// RenderMarkdown renders the full run report
func RenderMarkdown(run *experiment.RunResult) []byte {
	cmp := Compare(run)
	var b strings.Builder

	fmt.Fprintf(&b, "# Collider bias report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", run.RunID)
	fmt.Fprintf(&b, "- Created: %s\n", run.CreatedAt)
	fmt.Fprintf(&b, "- Seed: %d\n", run.Seed)
	fmt.Fprintf(&b, "- Selection metric: %s\n", run.Metric)
	if run.Manifest != nil {
		fmt.Fprintf(&b, "- Fingerprint: `%s` (code %s)\n", run.Manifest.Fingerprint.Fingerprint.Short(), run.Manifest.CodeVersion)
	}
	b.WriteString("\n")

	for _, study := range run.Studies {
		writeStudy(&b, run, cmp, study)
	}
	return []byte(b.String())
}

func writeStudy(b *strings.Builder, run *experiment.RunResult, cmp Comparison, study experiment.StudyResult) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", study.Name, study.Description)
	fmt.Fprintf(b, "- Outcome: %s\n", study.Outcome)
	fmt.Fprintf(b, "- Rows: %d (train %d, test %d), %d folds\n", study.Rows, study.TrainRows, study.TestRows, study.Folds)
	fmt.Fprintf(b, "- Dataset fingerprint: `%s`\n\n", study.Fingerprint.Short())

	if len(study.Edges) > 0 {
		b.WriteString("### Causal graph\n\n")
		for _, e := range study.Edges {
			fmt.Fprintf(b, "- %s → %s\n", e.From, e.To)
		}
		if len(study.Latent) > 0 {
			fmt.Fprintf(b, "\nUnobserved in the baseline: %s\n", joinKeys(study.Latent))
		}
		b.WriteString("\n")
	}

	b.WriteString("### Held-out metrics\n\n")
	b.WriteString("| Rank | Workflow | Formula | Params | RMSE | R² | MAE |\n")
	b.WriteString("|---:|---|---|---|---:|---:|---:|\n")
	for _, entry := range cmp.Ranking(study.Name, run.Metric) {
		e, _ := study.Evaluation(entry.Workflow)
		fmt.Fprintf(b, "| %d | %s | `%s` | %s | %s | %s | %s |\n",
			entry.Rank, e.Workflow.ID, e.Workflow.VariableSet.Formula(), e.Params.Key(),
			num(e.Metrics[experiment.MetricRMSE]), num(e.Metrics[experiment.MetricRSQ]), num(e.Metrics[experiment.MetricMAE]))
	}
	b.WriteString("\n")

	if deltas := cmp.StudyDeltas(study.Name); len(deltas) > 0 {
		fmt.Fprintf(b, "### %s vs %s\n\n", study.BaselineSet, study.ConfounderSet)
		b.WriteString("| Model | Metric | Baseline | Confounder | Change | Improved |\n")
		b.WriteString("|---|---|---:|---:|---:|---|\n")
		for _, d := range deltas {
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
				d.Model, d.Metric, num(d.Baseline), num(d.Confounder), signed(d.Change), yesNo(d.Improved))
		}
		b.WriteString("\n")
	}

	for _, e := range study.Evaluations {
		if len(e.Coefficients) == 0 {
			continue
		}
		fmt.Fprintf(b, "### Coefficients: %s\n\n", e.Workflow.ID)
		b.WriteString("| Term | Estimate | Std. error | 5.5% | 94.5% |\n")
		b.WriteString("|---|---:|---:|---:|---:|\n")
		for _, c := range e.Coefficients {
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", c.Term, num(c.Estimate), num(c.StdErr), num(c.Lower), num(c.Upper))
		}
		b.WriteString("\n")
	}

	for _, e := range study.Evaluations {
		if len(e.Importances) == 0 {
			continue
		}
		fmt.Fprintf(b, "### Feature importance: %s\n\n", e.Workflow.ID)
		b.WriteString("| Term | Gain |\n|---|---:|\n")
		for _, imp := range e.Importances {
			fmt.Fprintf(b, "| %s | %s |\n", imp.Term, num(imp.Gain))
		}
		b.WriteString("\n")
	}

	var warnings []string
	for _, e := range study.Evaluations {
		for _, w := range e.Warnings {
			line := fmt.Sprintf("- `%s` conditions on collider **%s** (causes: %s)", e.Workflow.ID, w.Collider, joinKeys(w.Opened))
			if len(w.Omitted) > 0 {
				line += fmt.Sprintf("; omitted: %s", joinKeys(w.Omitted))
			}
			warnings = append(warnings, line)
		}
	}
	if len(warnings) > 0 {
		b.WriteString("### Conditioning warnings\n\n")
		b.WriteString(strings.Join(warnings, "\n"))
		b.WriteString("\n\n")
	}

	for _, e := range study.Evaluations {
		if e.Tuning == nil {
			continue
		}
		fmt.Fprintf(b, "### Tuning: %s\n\n", e.Workflow.ID)
		fmt.Fprintf(b, "| Params | Mean %s | Std. error | Folds | Status |\n", e.Tuning.Metric)
		b.WriteString("|---|---:|---:|---:|---|\n")
		for _, c := range e.Tuning.Configs {
			fmt.Fprintf(b, "| %s | %s | %s | %d | %s |\n",
				c.Params.Key(), num(c.Mean[e.Tuning.Metric]), num(c.StdErr[e.Tuning.Metric]), len(c.Folds), status(c, e.Tuning.Best))
		}
		b.WriteString("\n")
	}

	if len(study.Failures) > 0 {
		b.WriteString("### Excluded workflows\n\n")
		for _, f := range study.Failures {
			fmt.Fprintf(b, "- `%s` failed during %s: %v\n", f.Workflow.ID, f.Stage, f.Err)
		}
		b.WriteString("\n")
	}
}

func status(c experiment.ConfigResult, best experiment.HyperParams) string {
	switch {
	case c.Err != nil:
		return "failed"
	case c.EliminatedAfter > 0:
		return fmt.Sprintf("eliminated after %d folds", c.EliminatedAfter)
	case c.Params.Key() == best.Key():
		return "**best**"
	}
	return "completed"
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return fmt.Sprintf("%.3f", v)
}

func signed(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return fmt.Sprintf("%+.3f", v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joinKeys(keys []core.VariableKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
