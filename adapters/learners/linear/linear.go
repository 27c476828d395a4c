// Package linear fits ordinary least squares and ridge regression.
package linear

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"colliderlab/domain/core"
	"colliderlab/domain/experiment"
	"colliderlab/ports"
)

// Kind is the registry name of this learner
const Kind = "linear"

// ParamPenalty is the ridge penalty; zero means OLS
const ParamPenalty = "penalty"

// Learner fits linear models with an unpenalized intercept
type Learner struct{}

var _ ports.Learner = (*Learner)(nil)

// New creates a linear learner
func New() *Learner {
	return &Learner{}
}

// Kind returns "linear"
func (l *Learner) Kind() string {
	return Kind
}

// Fit solves OLS by QR when penalty is zero and ridge by Cholesky otherwise.
// Ridge minimizes RSS/(2n) + penalty/2 * |w|^2.
func (l *Learner) Fit(ctx context.Context, x mat.Matrix, y []float64, params experiment.HyperParams) (ports.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, p := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d outcomes", core.ErrInvalidParameter, n, len(y))
	}
	penalty := params.Get(ParamPenalty, 0)
	if penalty < 0 || math.IsNaN(penalty) {
		return nil, core.NewInvalidParameterError(ParamPenalty, "must be non-negative")
	}
	if n <= p+1 {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", core.ErrInsufficientData, n, p+1)
	}
	if penalty == 0 {
		return fitOLS(x, y)
	}
	return fitRidge(x, y, penalty)
}

// Model is a fitted linear predictor
type Model struct {
	Intercept float64
	Weights   []float64
	// StdErr has one entry per coefficient, intercept first. NaN for
	// penalized fits, which have no closed-form standard errors here.
	StdErr   []float64
	Sigma    float64
	DF       int
	Penalty  float64
	Observed int
}

var _ ports.CoefficientModel = (*Model)(nil)

// Predict returns intercept + x*w for every row
func (m *Model) Predict(x mat.Matrix) []float64 {
	n, _ := x.Dims()
	out := make([]float64, n)
	w := mat.NewVecDense(len(m.Weights), m.Weights)
	var pred mat.VecDense
	pred.MulVec(x, w)
	for i := range out {
		out[i] = m.Intercept + pred.AtVec(i)
	}
	return out
}

// Coefficients returns the coefficient table with an 89% normal interval,
// the textbook default for compatibility intervals.
func (m *Model) Coefficients(terms []string) []experiment.Coefficient {
	z := distuv.UnitNormal.Quantile(0.945)
	estimates := append([]float64{m.Intercept}, m.Weights...)
	names := append([]string{"(Intercept)"}, terms...)

	out := make([]experiment.Coefficient, len(estimates))
	for i, est := range estimates {
		se := math.NaN()
		if i < len(m.StdErr) {
			se = m.StdErr[i]
		}
		name := fmt.Sprintf("x%d", i)
		if i < len(names) {
			name = names[i]
		}
		out[i] = experiment.Coefficient{
			Term:     name,
			Estimate: est,
			StdErr:   se,
			TValue:   est / se,
			Lower:    est - z*se,
			Upper:    est + z*se,
		}
	}
	return out
}

func design(x mat.Matrix) *mat.Dense {
	n, p := x.Dims()
	d := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		d.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			d.Set(i, j+1, x.At(i, j))
		}
	}
	return d
}

func fitOLS(x mat.Matrix, y []float64) (*Model, error) {
	n, p := x.Dims()
	d := design(x)

	var qr mat.QR
	qr.Factorize(d)
	if err := checkRank(&qr, p+1); err != nil {
		return nil, err
	}
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, mat.NewVecDense(n, y)); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}
	coef := mat.Col(nil, 0, &beta)

	fitted := make([]float64, n)
	var fv mat.VecDense
	fv.MulVec(d, mat.NewVecDense(p+1, coef))
	for i := range fitted {
		fitted[i] = fv.AtVec(i)
	}
	resid := make([]float64, n)
	floats.SubTo(resid, y, fitted)
	df := n - p - 1
	sigma2 := floats.Dot(resid, resid) / float64(df)

	var xtx, inv mat.Dense
	xtx.Mul(d.T(), d)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}
	se := make([]float64, p+1)
	for j := range se {
		se[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}

	return &Model{
		Intercept: coef[0],
		Weights:   coef[1:],
		StdErr:    se,
		Sigma:     math.Sqrt(sigma2),
		DF:        df,
		Observed:  n,
	}, nil
}

// rankTolerance bounds |R_jj| / max|R_kk| below which a column is treated as
// a linear combination of the others
const rankTolerance = 1e-10

func checkRank(qr *mat.QR, k int) error {
	var r mat.Dense
	qr.RTo(&r)
	largest := 0.0
	for j := 0; j < k; j++ {
		largest = math.Max(largest, math.Abs(r.At(j, j)))
	}
	for j := 0; j < k; j++ {
		if largest == 0 || math.Abs(r.At(j, j))/largest < rankTolerance {
			return fmt.Errorf("%w: column %d is collinear", core.ErrSingularDesign, j)
		}
	}
	return nil
}

func fitRidge(x mat.Matrix, y []float64, penalty float64) (*Model, error) {
	n, p := x.Dims()

	means := make([]float64, p)
	xc := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, x)
		means[j] = stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			xc.Set(i, j, col[i]-means[j])
		}
	}
	ymean := stat.Mean(y, nil)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - ymean
	}

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+penalty*float64(n))
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, fmt.Errorf("%w: ridge system is not positive definite", core.ErrSingularDesign)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), mat.NewVecDense(n, yc))
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularDesign, err)
	}

	weights := make([]float64, p)
	intercept := ymean
	for j := range weights {
		weights[j] = w.AtVec(j)
		intercept -= weights[j] * means[j]
	}

	se := make([]float64, p+1)
	for j := range se {
		se[j] = math.NaN()
	}
	return &Model{
		Intercept: intercept,
		Weights:   weights,
		StdErr:    se,
		DF:        n - p - 1,
		Penalty:   penalty,
		Observed:  n,
	}, nil
}
