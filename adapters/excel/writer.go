// Package excel reads and writes simulated datasets as xlsx or csv files.
package excel

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"colliderlab/domain/dataset"
)

// MetaSheet holds provenance of an exported dataset
const MetaSheet = "meta"

// WriteDataset exports a bundle to an xlsx workbook: the rows on the data
// sheet and source, seed, parameters and fingerprint on the meta sheet.
func WriteDataset(path string, bundle *dataset.MatrixBundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return err
	}
	header := make([]interface{}, len(bundle.Matrix.VariableKeys))
	for i, k := range bundle.Matrix.VariableKeys {
		header[i] = string(k)
	}

	// the stream writer keeps large datasets out of the in-memory sheet model
	sw, err := f.NewStreamWriter(DataSheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, row := range bundle.Matrix.Data {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	if _, err := f.NewSheet(MetaSheet); err != nil {
		return err
	}
	meta := [][]interface{}{
		{"source", bundle.Source},
		{"seed", bundle.Seed},
		{"rows", bundle.Matrix.Rows()},
		{"fingerprint", bundle.Fingerprint.String()},
		{"created_at", bundle.CreatedAt.String()},
	}
	names := make([]string, 0, len(bundle.Params))
	for n := range bundle.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		meta = append(meta, []interface{}{n, bundle.Params[n]})
	}
	for i, row := range meta {
		if err := f.SetSheetRow(MetaSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
