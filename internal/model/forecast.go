package model

import (
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tunestats/tunestats/internal/features"
)

// SessionForecaster is a ridge regression predicting a user's mean listen
// duration from their behavioral aggregates. Features are selected by
// absolute univariate correlation with the target, then standardized.
type SessionForecaster struct {
	Alpha    float64 // ridge penalty, default 1.0
	TopK     int     // number of features to keep, default all
	ValSplit float64
	Seed     uint64

	names    []string // selected feature names
	selected []int    // column indices into the input matrix
	weights  *mat.VecDense
	bias     float64
	scaler   *scaler
	metrics  map[string]float64
}

// Train fits the regression and returns train and validation metrics.
func (f *SessionForecaster) Train(m *features.Matrix) (map[string]float64, error) {
	if m == nil || len(m.X) < 4 {
		return nil, fmt.Errorf("session forecaster: need at least 4 rows, got %d", rowCount(m))
	}
	if f.Alpha <= 0 {
		f.Alpha = 1.0
	}
	if f.ValSplit <= 0 || f.ValSplit >= 1 {
		f.ValSplit = 0.2
	}

	f.selectFeatures(m)

	X := f.project(m.X)
	trainIdx, valIdx := trainValSplit(len(X), f.ValSplit, f.Seed)
	trainX, trainY := subset(X, m.Y, trainIdx)
	valX, valY := subset(X, m.Y, valIdx)

	f.scaler = fitScaler(trainX)
	trainX = f.scaler.transform(trainX)
	valX = f.scaler.transform(valX)

	if err := f.solve(trainX, trainY); err != nil {
		return nil, err
	}

	f.metrics = map[string]float64{
		"train_n":    float64(len(trainY)),
		"val_n":      float64(len(valY)),
		"n_features": float64(len(f.names)),
	}
	f.evaluate("train", trainX, trainY)
	f.evaluate("val", valX, valY)

	log.WithFields(log.Fields{
		"rows":     len(X),
		"features": f.names,
		"val_r2":   f.metrics["val_r2"],
	}).Info("trained session forecaster")
	return f.metrics, nil
}

func rowCount(m *features.Matrix) int {
	if m == nil {
		return 0
	}
	return len(m.X)
}

// selectFeatures keeps the TopK columns with the largest |correlation|
// against the target. Constant columns correlate as NaN and sort last.
func (f *SessionForecaster) selectFeatures(m *features.Matrix) {
	type scored struct {
		col  int
		corr float64
	}
	cols := len(m.Names)
	scores := make([]scored, cols)
	col := make([]float64, len(m.X))
	for j := 0; j < cols; j++ {
		for i := range m.X {
			col[i] = m.X[i][j]
		}
		c := math.Abs(stat.Correlation(col, m.Y, nil))
		if math.IsNaN(c) {
			c = 0
		}
		scores[j] = scored{col: j, corr: c}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].corr > scores[b].corr })

	k := f.TopK
	if k <= 0 || k > cols {
		k = cols
	}
	f.selected = make([]int, k)
	f.names = make([]string, k)
	for i := 0; i < k; i++ {
		f.selected[i] = scores[i].col
		f.names[i] = m.Names[scores[i].col]
	}
	sort.Sort(byColumn{f.selected, f.names})
}

type byColumn struct {
	cols  []int
	names []string
}

func (b byColumn) Len() int           { return len(b.cols) }
func (b byColumn) Less(i, j int) bool { return b.cols[i] < b.cols[j] }
func (b byColumn) Swap(i, j int) {
	b.cols[i], b.cols[j] = b.cols[j], b.cols[i]
	b.names[i], b.names[j] = b.names[j], b.names[i]
}

func (f *SessionForecaster) project(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		sel := make([]float64, len(f.selected))
		for k, j := range f.selected {
			sel[k] = row[j]
		}
		out[i] = sel
	}
	return out
}

// solve computes the closed-form ridge solution (XᵀX + αI)⁻¹ Xᵀy on the
// standardized design. The intercept is the train-target mean since the
// columns are centered.
func (f *SessionForecaster) solve(X [][]float64, y []float64) error {
	n := len(X)
	p := len(f.selected)

	xd := mat.NewDense(n, p, nil)
	for i, row := range X {
		xd.SetRow(i, row)
	}
	yv := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(xd.T(), xd)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+f.Alpha)
	}

	var xty mat.VecDense
	xty.MulVec(xd.T(), yv)

	f.weights = mat.NewVecDense(p, nil)
	if err := f.weights.SolveVec(&xtx, &xty); err != nil {
		return fmt.Errorf("ridge solve: %w", err)
	}
	f.bias = stat.Mean(y, nil)
	return nil
}

func (f *SessionForecaster) predictScaled(row []float64) float64 {
	pred := f.bias
	for j, v := range row {
		pred += f.weights.AtVec(j) * v
	}
	return pred
}

func (f *SessionForecaster) evaluate(prefix string, X [][]float64, y []float64) {
	if len(y) == 0 {
		return
	}
	preds := make([]float64, len(X))
	for i, row := range X {
		preds[i] = f.predictScaled(row)
	}
	f.metrics[prefix+"_r2"] = r2Score(y, preds)
	f.metrics[prefix+"_rmse"] = rmse(y, preds)
	f.metrics[prefix+"_mae"] = meanAbsError(y, preds)
}

// Predict returns duration predictions for raw feature rows with the same
// column layout as the training matrix.
func (f *SessionForecaster) Predict(X [][]float64) ([]float64, error) {
	if f.weights == nil {
		return nil, errNotFitted
	}
	scaled := f.scaler.transform(f.project(X))
	out := make([]float64, len(scaled))
	for i, row := range scaled {
		out[i] = f.predictScaled(row)
	}
	return out, nil
}

// Metrics returns the metrics of the last Train call.
func (f *SessionForecaster) Metrics() map[string]float64 {
	return f.metrics
}

// SelectedFeatures returns the names of the columns the model kept.
func (f *SessionForecaster) SelectedFeatures() []string {
	return f.names
}
