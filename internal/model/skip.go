package model

import (
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/tunestats/tunestats/internal/features"
)

// SkipPredictor is an L2-regularized logistic regression estimating the
// probability that a session ends in a skip.
type SkipPredictor struct {
	// Lambda is the L2 penalty weight. LearningRate and Iterations tune the
	// gradient descent; zero values take the defaults.
	Lambda       float64
	LearningRate float64
	Iterations   int
	ValSplit     float64
	Seed         uint64

	names   []string
	weights []float64
	bias    float64
	scaler  *scaler
	metrics map[string]float64
}

// Train fits the classifier on a skip matrix and returns the train and
// validation metrics.
func (p *SkipPredictor) Train(m *features.Matrix) (map[string]float64, error) {
	if m == nil || len(m.X) == 0 {
		return nil, fmt.Errorf("skip predictor: empty training matrix")
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.1
	}
	if p.Iterations <= 0 {
		p.Iterations = 300
	}
	if p.Lambda <= 0 {
		p.Lambda = 0.01
	}
	if p.ValSplit <= 0 || p.ValSplit >= 1 {
		p.ValSplit = 0.2
	}

	trainIdx, valIdx := trainValSplit(len(m.X), p.ValSplit, p.Seed)
	trainX, trainY := subset(m.X, m.Y, trainIdx)
	valX, valY := subset(m.X, m.Y, valIdx)

	p.names = m.Names
	p.scaler = fitScaler(trainX)
	trainX = p.scaler.transform(trainX)
	valX = p.scaler.transform(valX)

	p.fit(trainX, trainY)

	p.metrics = map[string]float64{
		"train_n": float64(len(trainY)),
		"val_n":   float64(len(valY)),
	}
	p.evaluate("train", trainX, trainY)
	p.evaluate("val", valX, valY)

	log.WithFields(log.Fields{
		"rows":     len(m.X),
		"features": len(m.Names),
		"val_auc":  p.metrics["val_auc"],
	}).Info("trained skip predictor")
	return p.metrics, nil
}

// fit runs full-batch gradient descent on the regularized log loss.
func (p *SkipPredictor) fit(X [][]float64, y []float64) {
	nFeatures := len(p.names)
	p.weights = make([]float64, nFeatures)
	p.bias = 0
	n := float64(len(X))

	grad := make([]float64, nFeatures)
	for iter := 0; iter < p.Iterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for i, row := range X {
			err := sigmoid(p.score(row)) - y[i]
			for j, v := range row {
				grad[j] += err * v
			}
			gradBias += err
		}
		for j := range p.weights {
			g := grad[j]/n + p.Lambda*p.weights[j]
			p.weights[j] -= p.LearningRate * g
		}
		p.bias -= p.LearningRate * gradBias / n
	}
}

func (p *SkipPredictor) score(row []float64) float64 {
	s := p.bias
	for j, v := range row {
		s += p.weights[j] * v
	}
	return s
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (p *SkipPredictor) evaluate(prefix string, X [][]float64, y []float64) {
	if len(y) == 0 {
		return
	}
	probs := make([]float64, len(X))
	preds := make([]float64, len(X))
	for i, row := range X {
		probs[i] = sigmoid(p.score(row))
		if probs[i] >= 0.5 {
			preds[i] = 1
		}
	}
	p.metrics[prefix+"_accuracy"] = accuracy(y, preds)
	p.metrics[prefix+"_auc"] = rocAUC(y, probs)
	if prefix == "val" {
		precision, recall, f1 := precisionRecallF1(y, preds)
		p.metrics["val_precision"] = precision
		p.metrics["val_recall"] = recall
		p.metrics["val_f1"] = f1
	}
}

// PredictProba returns skip probabilities for raw (unscaled) feature rows.
func (p *SkipPredictor) PredictProba(X [][]float64) ([]float64, error) {
	if p.weights == nil {
		return nil, errNotFitted
	}
	scaled := p.scaler.transform(X)
	out := make([]float64, len(scaled))
	for i, row := range scaled {
		out[i] = sigmoid(p.score(row))
	}
	return out, nil
}

// Predict returns hard 0/1 skip labels at the 0.5 threshold.
func (p *SkipPredictor) Predict(X [][]float64) ([]float64, error) {
	probs, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	for i, prob := range probs {
		if prob >= 0.5 {
			probs[i] = 1
		} else {
			probs[i] = 0
		}
	}
	return probs, nil
}

// Metrics returns the metrics of the last Train call.
func (p *SkipPredictor) Metrics() map[string]float64 {
	return p.metrics
}

// FeatureWeight pairs a feature name with its learned coefficient on the
// standardized scale.
type FeatureWeight struct {
	Name   string
	Weight float64
}

// TopFeatures returns the k features with the largest absolute weights.
func (p *SkipPredictor) TopFeatures(k int) []FeatureWeight {
	out := make([]FeatureWeight, len(p.names))
	for j, name := range p.names {
		out[j] = FeatureWeight{Name: name, Weight: p.weights[j]}
	}
	sort.Slice(out, func(a, b int) bool {
		return math.Abs(out[a].Weight) > math.Abs(out[b].Weight)
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
