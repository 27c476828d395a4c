package report

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"colliderlab/domain/experiment"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

// Workbook sheet names
const (
	SheetMetrics      = "Metrics"
	SheetDeltas       = "Deltas"
	SheetTuning       = "Tuning"
	SheetCoefficients = "Coefficients"
	SheetImportances  = "Importances"
	SheetFailures     = "Failures"
)

// XLSXWriter writes report.xlsx with summary sheets and one
// predicted-vs-actual sheet and scatter chart per evaluation
type XLSXWriter struct{}

var _ ports.ReportWriter = XLSXWriter{}

// Format implements ports.ReportWriter
func (XLSXWriter) Format() string { return "xlsx" }

// Write implements ports.ReportWriter
func (w XLSXWriter) Write(ctx context.Context, dir string, run *experiment.RunResult) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetMetrics); err != nil {
		return "", apperrors.ReportError("rename sheet", err)
	}
	cmp := Compare(run)

	steps := []func(*excelize.File, *experiment.RunResult, Comparison) error{
		writeMetrics, writeDeltas, writeTuning, writeCoefficients, writeImportances, writeFailures,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := step(f, run, cmp); err != nil {
			return "", apperrors.ReportError("build workbook", err)
		}
	}
	for _, study := range run.Studies {
		for _, e := range study.Evaluations {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if err := writePredictions(f, study.Name, e); err != nil {
				return "", apperrors.ReportError("write predictions", err)
			}
		}
	}
	f.SetActiveSheet(0)

	path := filepath.Join(dir, "report.xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", apperrors.ReportError("save workbook", err)
	}
	return path, nil
}

// rows writes a header and data rows starting at A1
func rows(f *excelize.File, sheet string, header []interface{}, data [][]interface{}) error {
	if sheet != SheetMetrics {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// cellValue leaves non-finite numbers blank
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func writeMetrics(f *excelize.File, run *experiment.RunResult, cmp Comparison) error {
	var data [][]interface{}
	for _, study := range run.Studies {
		for _, e := range study.Evaluations {
			data = append(data, []interface{}{
				study.Name, string(e.Workflow.ID), e.Workflow.VariableSet.Name, e.Workflow.ModelKind, e.Params.Key(),
				cellValue(e.Metrics[experiment.MetricRMSE]),
				cellValue(e.Metrics[experiment.MetricRSQ]),
				cellValue(e.Metrics[experiment.MetricMAE]),
				cmp.Rank(study.Name, e.Workflow.ID, run.Metric),
			})
		}
	}
	header := []interface{}{"study", "workflow", "variable_set", "model", "params", "rmse", "rsq", "mae", "rank_" + string(run.Metric)}
	return rows(f, SheetMetrics, header, data)
}

func writeDeltas(f *excelize.File, _ *experiment.RunResult, cmp Comparison) error {
	data := make([][]interface{}, 0, len(cmp.Deltas))
	for _, d := range cmp.Deltas {
		data = append(data, []interface{}{
			d.Study, d.Model, string(d.Metric), cellValue(d.Baseline), cellValue(d.Confounder), cellValue(d.Change), d.Improved,
		})
	}
	header := []interface{}{"study", "model", "metric", "baseline", "confounder", "change", "improved"}
	return rows(f, SheetDeltas, header, data)
}

func writeTuning(f *excelize.File, run *experiment.RunResult, _ Comparison) error {
	var data [][]interface{}
	for _, study := range run.Studies {
		for _, e := range study.Evaluations {
			if e.Tuning == nil {
				continue
			}
			for _, c := range e.Tuning.Configs {
				state := strings.Trim(status(c, e.Tuning.Best), "*")
				data = append(data, []interface{}{
					study.Name, string(e.Workflow.ID), c.Params.Key(),
					cellValue(c.Mean[e.Tuning.Metric]), cellValue(c.StdErr[e.Tuning.Metric]), len(c.Folds), state,
				})
			}
		}
	}
	header := []interface{}{"study", "workflow", "params", "mean_" + string(run.Metric), "std_err", "folds", "status"}
	return rows(f, SheetTuning, header, data)
}

func writeCoefficients(f *excelize.File, run *experiment.RunResult, _ Comparison) error {
	var data [][]interface{}
	for _, study := range run.Studies {
		for _, e := range study.Evaluations {
			for _, c := range e.Coefficients {
				data = append(data, []interface{}{
					study.Name, string(e.Workflow.ID), c.Term,
					cellValue(c.Estimate), cellValue(c.StdErr), cellValue(c.TValue), cellValue(c.Lower), cellValue(c.Upper),
				})
			}
		}
	}
	header := []interface{}{"study", "workflow", "term", "estimate", "std_err", "t_value", "lower_5.5", "upper_94.5"}
	return rows(f, SheetCoefficients, header, data)
}

func writeImportances(f *excelize.File, run *experiment.RunResult, _ Comparison) error {
	var data [][]interface{}
	for _, study := range run.Studies {
		for _, e := range study.Evaluations {
			for _, imp := range e.Importances {
				data = append(data, []interface{}{study.Name, string(e.Workflow.ID), imp.Term, cellValue(imp.Gain)})
			}
		}
	}
	return rows(f, SheetImportances, []interface{}{"study", "workflow", "term", "gain"}, data)
}

func writeFailures(f *excelize.File, run *experiment.RunResult, _ Comparison) error {
	var data [][]interface{}
	for _, study := range run.Studies {
		for _, fail := range study.Failures {
			data = append(data, []interface{}{study.Name, string(fail.Workflow.ID), fail.Stage, fail.Err.Error()})
		}
	}
	if len(data) == 0 {
		return nil
	}
	return rows(f, SheetFailures, []interface{}{"study", "workflow", "stage", "error"}, data)
}

// PredictionSheet names the per-evaluation sheet within Excel's 31
// character limit
func PredictionSheet(study string, e experiment.Evaluation) string {
	name := study + "_" + string(e.Workflow.ID)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func writePredictions(f *excelize.File, study string, e experiment.Evaluation) error {
	sheet := PredictionSheet(study, e)
	data := make([][]interface{}, len(e.Truth))
	for i := range e.Truth {
		data[i] = []interface{}{cellValue(e.Truth[i]), cellValue(e.Predictions[i])}
	}
	if err := rows(f, sheet, []interface{}{"truth", "prediction"}, data); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	last := len(data) + 1
	return f.AddChart(sheet, "D2", &excelize.Chart{
		Type: excelize.Scatter,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$B$1", sheet),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", sheet, last),
			Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", sheet, last),
			Line:       excelize.ChartLine{Type: excelize.ChartLineNone},
			Marker:     excelize.ChartMarker{Symbol: "circle", Size: 4},
		}},
		Title:     []excelize.RichTextRun{{Text: fmt.Sprintf("%s: predicted vs actual", e.Workflow.ID)}},
		XAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "truth"}}},
		YAxis:     excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "prediction"}}},
		Legend:    excelize.ChartLegend{Position: "none"},
		Dimension: excelize.ChartDimension{Width: 480, Height: 360},
	})
}
