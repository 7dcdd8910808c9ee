// Package model holds the two estimators of the platform: skip-likelihood
// classification and session-duration regression.
package model

import (
	"errors"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

var errNotFitted = errors.New("model is not fitted: call Train first")

// scaler standardizes columns to zero mean and unit variance using the
// statistics of the training split.
type scaler struct {
	means []float64
	stds  []float64
}

func fitScaler(X [][]float64) *scaler {
	if len(X) == 0 {
		return &scaler{}
	}
	cols := len(X[0])
	s := &scaler{means: make([]float64, cols), stds: make([]float64, cols)}
	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		s.means[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.stds[j] = sd
	}
	return s
}

func (s *scaler) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.means[j]) / s.stds[j]
		}
		out[i] = scaled
	}
	return out
}

// trainValSplit shuffles row indices with a seeded generator and splits
// them into train and validation sets.
func trainValSplit(n int, valSplit float64, seed uint64) (train, val []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nVal := int(float64(n) * valSplit)
	if nVal < 1 && n > 1 {
		nVal = 1
	}
	return idx[nVal:], idx[:nVal]
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	sx := make([][]float64, len(idx))
	sy := make([]float64, len(idx))
	for i, j := range idx {
		sx[i] = X[j]
		sy[i] = y[j]
	}
	return sx, sy
}

func accuracy(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	hits := 0
	for i := range y {
		if y[i] == pred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y))
}

func precisionRecallF1(y, pred []float64) (precision, recall, f1 float64) {
	var tp, fp, fn float64
	for i := range y {
		switch {
		case pred[i] == 1 && y[i] == 1:
			tp++
		case pred[i] == 1 && y[i] == 0:
			fp++
		case pred[i] == 0 && y[i] == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return
}

// rocAUC is the Mann-Whitney rank statistic with average ranks on ties.
// Returns 0.5 for degenerate single-class labels.
func rocAUC(y, score []float64) float64 {
	n := len(y)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && score[idx[j]] == score[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // average of ranks i+1..j
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var nPos, nNeg, rankSum float64
	for i := range y {
		if y[i] == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}

func r2Score(y, pred []float64) float64 {
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		d := y[i] - pred[i]
		ssRes += d * d
		t := y[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func rmse(y, pred []float64) float64 {
	var sum float64
	for i := range y {
		d := y[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(y)))
}

func meanAbsError(y, pred []float64) float64 {
	var sum float64
	for i := range y {
		sum += math.Abs(y[i] - pred[i])
	}
	return sum / float64(len(y))
}
