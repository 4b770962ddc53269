package baseline

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/quickeda-cli/internal/problem"
)

// Linear is the generalised linear family: ridge regression for regression
// targets, L2-regularised softmax regression for classification.
type Linear struct {
	task         problem.Type
	classes      int
	ridge        float64
	epochs       int
	learningRate float64
}

// NewLinear returns the linear family for opt.Task.
func NewLinear(opt Options) *Linear {
	return &Linear{
		task:         opt.Task,
		classes:      opt.NumClasses,
		ridge:        opt.Ridge,
		epochs:       opt.Epochs,
		learningRate: opt.LearningRate,
	}
}

func (l *Linear) Name() string {
	if l.task == problem.Classification {
		return "logistic_regression"
	}
	return "linear_regression"
}

func (l *Linear) Fit(train Data) (Fitted, error) {
	if l.task == problem.Classification {
		return l.fitSoftmax(train)
	}
	return l.fitRidge(train)
}

// design returns X with a leading intercept column.
func design(X [][]float64) *mat.Dense {
	n := len(X)
	p := len(X[0])
	d := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		d.Set(i, 0, 1)
		for j, v := range row {
			d.Set(i, j+1, v)
		}
	}
	return d
}

type linearModel struct {
	// coef holds one row per output (1 for regression, K for softmax);
	// column 0 is the intercept.
	coef     *mat.Dense
	classify bool
}

// fitRidge solves (XᵀX + λD)β = Xᵀy by Cholesky, where D leaves the
// intercept unpenalised.
func (l *Linear) fitRidge(train Data) (Fitted, error) {
	x := design(train.X)
	_, p := x.Dims()
	ata := mat.NewSymDense(p, nil)
	ata.SymOuterK(1, x.T())
	for j := 1; j < p; j++ {
		ata.SetSym(j, j, ata.At(j, j)+l.ridge)
	}
	var aty mat.VecDense
	aty.MulVec(x.T(), mat.NewVecDense(len(train.Y), append([]float64(nil), train.Y...)))

	var chol mat.Cholesky
	if ok := chol.Factorize(ata); !ok {
		return nil, errors.New("ridge system is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &aty); err != nil {
		return nil, fmt.Errorf("ridge solve: %w", err)
	}
	coef := mat.NewDense(1, p, nil)
	for j := 0; j < p; j++ {
		coef.Set(0, j, beta.AtVec(j))
	}
	return &linearModel{coef: coef}, nil
}

// fitSoftmax runs full-batch gradient descent from zero weights, which keeps
// the fit deterministic.
func (l *Linear) fitSoftmax(train Data) (Fitted, error) {
	k := l.classes
	if k <= 0 {
		k = int(floats.Max(train.Y)) + 1
	}
	if distinctLabels(train.Y) < 2 {
		return nil, ErrSingleClass
	}
	x := design(train.X)
	n, p := x.Dims()
	onehot := mat.NewDense(n, k, nil)
	for i, y := range train.Y {
		c := int(y)
		if c < 0 || c >= k {
			return nil, fmt.Errorf("class index %d outside [0,%d)", c, k)
		}
		onehot.Set(i, c, 1)
	}

	w := mat.NewDense(k, p, nil)
	var logits, grad mat.Dense
	probs := mat.NewDense(n, k, nil)
	lambda := l.ridge / float64(n)
	for epoch := 0; epoch < l.epochs; epoch++ {
		logits.Mul(x, w.T())
		softmaxRows(&logits, probs)
		probs.Sub(probs, onehot)
		grad.Mul(probs.T(), x)
		grad.Scale(1/float64(n), &grad)
		// no penalty on the intercept column
		for c := 0; c < k; c++ {
			for j := 1; j < p; j++ {
				grad.Set(c, j, grad.At(c, j)+lambda*w.At(c, j))
			}
		}
		grad.Scale(l.learningRate, &grad)
		w.Sub(w, &grad)
	}
	return &linearModel{coef: w, classify: true}, nil
}

// softmaxRows writes the row-wise softmax of logits into dst.
func softmaxRows(logits *mat.Dense, dst *mat.Dense) {
	n, k := logits.Dims()
	row := make([]float64, k)
	for i := 0; i < n; i++ {
		mat.Row(row, i, logits)
		lse := floats.LogSumExp(row)
		for c := 0; c < k; c++ {
			dst.Set(i, c, math.Exp(row[c]-lse))
		}
	}
}

func (m *linearModel) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(X) == 0 {
		return out
	}
	var scores mat.Dense
	scores.Mul(design(X), m.coef.T())
	for i := range out {
		if !m.classify {
			out[i] = scores.At(i, 0)
			continue
		}
		best := 0
		_, k := scores.Dims()
		for c := 1; c < k; c++ {
			if scores.At(i, c) > scores.At(i, best) {
				best = c
			}
		}
		out[i] = float64(best)
	}
	return out
}

// Importances sums absolute coefficients per feature over all outputs.
// Features are standardised upstream, so magnitudes are comparable.
func (m *linearModel) Importances() []float64 {
	r, p := m.coef.Dims()
	w := make([]float64, p-1)
	for c := 0; c < r; c++ {
		for j := 1; j < p; j++ {
			w[j-1] += math.Abs(m.coef.At(c, j))
		}
	}
	return normalizeWeights(w)
}
