package dataset

import (
	"fmt"

	"colliderlab/domain/core"
)

// StatisticalType classifies a column for summaries and stratification
type StatisticalType string

const (
	TypeNumeric StatisticalType = "numeric"
	TypeBinary  StatisticalType = "binary"
	TypeCount   StatisticalType = "count"
)

// MatrixBundle is a simulated dataset together with the metadata needed to
// reproduce it. Bundles are never mutated after construction.
type MatrixBundle struct {
	Matrix     Matrix
	ColumnMeta []ColumnMeta

	// Provenance
	Source    string // simulator name, e.g. "family"
	Seed      int64
	Params    map[string]float64
	CreatedAt core.Timestamp

	// Fingerprint over keys and cell bits
	Fingerprint core.Hash
}

// ColumnMeta contains metadata for each matrix column
type ColumnMeta struct {
	VariableKey     core.VariableKey
	StatisticalType StatisticalType
	Description     string
}

// NewMatrixBundle fingerprints the matrix and stamps the creation time
func NewMatrixBundle(source string, seed int64, params map[string]float64, m Matrix, meta []ColumnMeta) *MatrixBundle {
	return &MatrixBundle{
		Matrix:      m,
		ColumnMeta:  meta,
		Source:      source,
		Seed:        seed,
		Params:      params,
		CreatedAt:   core.Now(),
		Fingerprint: core.ComputeMatrixHash(m.VariableKeys, m.Data),
	}
}

// Meta returns the column metadata for a key
func (b *MatrixBundle) Meta(key core.VariableKey) (ColumnMeta, bool) {
	for _, m := range b.ColumnMeta {
		if m.VariableKey == key {
			return m, true
		}
	}
	return ColumnMeta{}, false
}

// Matrix represents dense numerical data ready for statistical analysis
type Matrix struct {
	Data         [][]float64        // rows=observations, cols=variables
	VariableKeys []core.VariableKey // column variable keys
}

// NewMatrix checks that every row has one value per key
func NewMatrix(keys []core.VariableKey, data [][]float64) (Matrix, error) {
	for i, row := range data {
		if len(row) != len(keys) {
			return Matrix{}, fmt.Errorf("%w: row %d has %d values, expected %d",
				core.ErrInvalidParameter, i, len(row), len(keys))
		}
	}
	return Matrix{Data: data, VariableKeys: keys}, nil
}

// Rows returns the number of observations
func (m Matrix) Rows() int {
	return len(m.Data)
}

// Index returns the column position of a key
func (m Matrix) Index(key core.VariableKey) (int, error) {
	for i, k := range m.VariableKeys {
		if k == key {
			return i, nil
		}
	}
	return -1, core.NewVariableNotFoundError(key)
}

// Column copies one column out of the matrix
func (m Matrix) Column(key core.VariableKey) ([]float64, error) {
	j, err := m.Index(key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(m.Data))
	for i, row := range m.Data {
		out[i] = row[j]
	}
	return out, nil
}

// ColumnAt copies one column restricted to the given rows
func (m Matrix) ColumnAt(key core.VariableKey, rows []int) ([]float64, error) {
	j, err := m.Index(key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = m.Data[r][j]
	}
	return out, nil
}

// Select copies the requested columns for the requested rows into a
// row-major slice suitable for mat.NewDense. A nil rows slice means all rows.
func (m Matrix) Select(keys []core.VariableKey, rows []int) ([]float64, error) {
	idx := make([]int, len(keys))
	for j, k := range keys {
		i, err := m.Index(k)
		if err != nil {
			return nil, err
		}
		idx[j] = i
	}
	if rows == nil {
		rows = AllRows(m.Rows())
	}
	out := make([]float64, 0, len(rows)*len(keys))
	for _, r := range rows {
		for _, j := range idx {
			out = append(out, m.Data[r][j])
		}
	}
	return out, nil
}

// Filter returns a new matrix holding only the rows that satisfy keep
func (m Matrix) Filter(keep func(row []float64) bool) Matrix {
	var data [][]float64
	for _, row := range m.Data {
		if keep(row) {
			data = append(data, append([]float64(nil), row...))
		}
	}
	return Matrix{Data: data, VariableKeys: append([]core.VariableKey(nil), m.VariableKeys...)}
}

// WithColumn returns a new matrix with a derived column appended
func (m Matrix) WithColumn(key core.VariableKey, derive func(row []float64) float64) Matrix {
	data := make([][]float64, len(m.Data))
	for i, row := range m.Data {
		next := make([]float64, len(row), len(row)+1)
		copy(next, row)
		data[i] = append(next, derive(row))
	}
	keys := append(append([]core.VariableKey(nil), m.VariableKeys...), key)
	return Matrix{Data: data, VariableKeys: keys}
}

// AllRows returns 0..n-1
func AllRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}
