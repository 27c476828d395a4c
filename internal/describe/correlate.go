package describe

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"colliderlab/domain/core"
	"colliderlab/domain/dataset"
)

// Correlation is the linear and rank association of two columns
type Correlation struct {
	X        core.VariableKey
	Y        core.VariableKey
	N        int
	Pearson  float64
	Spearman float64
	// PValue is the two-sided test of zero Pearson correlation
	PValue   float64
}

// Pair correlates two equally long slices. Constant input gives NaN.
func Pair(x, y core.VariableKey, xs, ys []float64) (Correlation, error) {
	if len(xs) != len(ys) {
		return Correlation{}, fmt.Errorf("%w: %s has %d values, %s has %d",
			core.ErrInvalidParameter, x, len(xs), y, len(ys))
	}
	if len(xs) < 3 {
		return Correlation{}, fmt.Errorf("%w: need at least 3 rows to correlate %s and %s",
			core.ErrInsufficientData, x, y)
	}
	c := Correlation{X: x, Y: y, N: len(xs)}
	c.Pearson = stat.Correlation(xs, ys, nil)
	c.Spearman = stat.Correlation(ranks(xs), ranks(ys), nil)
	c.PValue = correlationPValue(c.Pearson, c.N)
	return c, nil
}

// Correlations correlates every pair of columns over the given rows, or all
// rows when rows is nil. A non-nil empty selection has no rows to correlate.
func Correlations(m dataset.Matrix, rows []int) ([]Correlation, error) {
	if rows == nil {
		rows = dataset.AllRows(m.Rows())
	}
	cols := make([][]float64, len(m.VariableKeys))
	for j, key := range m.VariableKeys {
		values, err := m.Select([]core.VariableKey{key}, rows)
		if err != nil {
			return nil, err
		}
		cols[j] = values
	}
	var out []Correlation
	for i := range cols {
		for j := i + 1; j < len(cols); j++ {
			c, err := Pair(m.VariableKeys[i], m.VariableKeys[j], cols[i], cols[j])
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// Within returns the rows whose key column equals value, the stratum a
// model conditioning on key would see. An empty stratum is an error so it
// can never be mistaken for the nil all-rows selection.
func Within(m dataset.Matrix, key core.VariableKey, value float64) ([]int, error) {
	idx, err := m.Index(key)
	if err != nil {
		return nil, err
	}
	rows := make([]int, 0, m.Rows())
	for i, row := range m.Data {
		if row[idx] == value {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return rows, fmt.Errorf("%w: no rows with %s = %g", core.ErrInsufficientData, key, value)
	}
	return rows, nil
}

// ranks converts values to 1-based ranks, averaging ties
func ranks(data []float64) []float64 {
	n := len(data)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return data[order[a]] < data[order[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && data[order[j]] == data[order[i]] {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2
		for k := i; k < j; k++ {
			out[order[k]] = avg
		}
		i = j
	}
	return out
}

func correlationPValue(r float64, n int) float64 {
	if math.IsNaN(r) || n < 3 {
		return math.NaN()
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// CorrelationTable renders correlations one pair per line
func CorrelationTable(cs []Correlation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-22s %6s %9s %9s %9s\n", "pair", "n", "pearson", "spearman", "p")
	for _, c := range cs {
		fmt.Fprintf(&b, "%-22s %6d %9.3f %9.3f %9.3g\n", string(c.X)+" ~ "+string(c.Y), c.N, c.Pearson, c.Spearman, c.PValue)
	}
	return b.String()
}
