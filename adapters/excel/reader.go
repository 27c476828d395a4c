package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
)

// DataSheet is the sheet holding dataset rows
const DataSheet = "data"

// DataReader loads a numeric dataset from an xlsx or csv file whose first
// row holds the column names
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader picks the format from the file extension
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadMatrix reads every row into a matrix. Cells must parse as numbers.
func (r *DataReader) ReadMatrix() (dataset.Matrix, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return dataset.Matrix{}, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return dataset.Matrix{}, err
	}
	return r.processRows(rows)
}

// readExcelRows reads the data sheet, falling back to the first sheet
func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := DataSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows converts raw string rows into a numeric matrix
func (r *DataReader) processRows(rows [][]string) (dataset.Matrix, error) {
	if len(rows) < 2 {
		return dataset.Matrix{}, fmt.Errorf("%w: file must have a header row and at least one data row", core.ErrInsufficientData)
	}

	keys := make([]core.VariableKey, len(rows[0]))
	for i, header := range rows[0] {
		keys[i] = core.VariableKey(strings.TrimSpace(header))
	}

	data := make([][]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		values := make([]float64, len(keys))
		for j := range keys {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return dataset.Matrix{}, core.NewInvalidParameterError(string(keys[j]),
					fmt.Sprintf("row %d: %q is not numeric", i+2, cell))
			}
			values[j] = v
		}
		data = append(data, values)
	}
	return dataset.NewMatrix(keys, data)
}
