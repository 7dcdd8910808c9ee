// Package abtest evaluates two-group experiments: Welch's t-test, effect
// sizes, confidence intervals and sample-size planning.
package abtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result is the immutable outcome of one (experiment, metric) evaluation.
type Result struct {
	ControlMean        float64    `json:"control_mean"`
	TreatmentMean      float64    `json:"treatment_mean"`
	ControlStd         float64    `json:"control_std"`
	TreatmentStd       float64    `json:"treatment_std"`
	ControlN           int        `json:"control_n"`
	TreatmentN         int        `json:"treatment_n"`
	AbsoluteEffect     float64    `json:"absolute_effect"`
	RelativeEffect     float64    `json:"relative_effect"`
	PValue             float64    `json:"p_value"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	IsSignificant      bool       `json:"is_significant"`
	Power              float64    `json:"power"`
	EffectSize         float64    `json:"effect_size"`
}

// DefaultSignificanceLevel is the two-sided alpha used when none is
// configured.
const DefaultSignificanceLevel = 0.05

var unitNormal = distuv.UnitNormal

// Evaluate runs the full two-sample comparison between control and
// treatment observations at significance level alpha.
func Evaluate(control, treatment []float64, alpha float64) Result {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSignificanceLevel
	}

	r := Result{
		ControlN:   len(control),
		TreatmentN: len(treatment),
		Power:      0.80,
	}
	if r.ControlN == 0 || r.TreatmentN == 0 {
		// Empty groups degrade to a null result rather than erroring out.
		r.PValue = 1
		return r
	}

	r.ControlMean = stat.Mean(control, nil)
	r.TreatmentMean = stat.Mean(treatment, nil)
	r.ControlStd = sampleStd(control)
	r.TreatmentStd = sampleStd(treatment)

	r.AbsoluteEffect = r.TreatmentMean - r.ControlMean
	if r.ControlMean != 0 {
		r.RelativeEffect = r.AbsoluteEffect / r.ControlMean
	}

	r.PValue = welchPValue(r.ControlMean, r.ControlStd, r.ControlN,
		r.TreatmentMean, r.TreatmentStd, r.TreatmentN)

	// Normal-approximation CI on the pooled standard error.
	se := math.Sqrt(r.ControlStd*r.ControlStd/float64(r.ControlN) +
		r.TreatmentStd*r.TreatmentStd/float64(r.TreatmentN))
	z := unitNormal.Quantile(1 - alpha/2)
	r.ConfidenceInterval = [2]float64{r.AbsoluteEffect - z*se, r.AbsoluteEffect + z*se}

	r.IsSignificant = r.PValue < alpha

	if d := pooledStd(r.ControlStd, r.ControlN, r.TreatmentStd, r.TreatmentN); d != 0 {
		r.EffectSize = r.AbsoluteEffect / d
	}
	return r
}

// welchPValue is the two-sided unequal-variance t-test with the
// Welch-Satterthwaite degrees of freedom.
func welchPValue(meanC, stdC float64, nC int, meanT, stdT float64, nT int) float64 {
	vc := stdC * stdC / float64(nC)
	vt := stdT * stdT / float64(nT)
	se := math.Sqrt(vc + vt)
	if se == 0 {
		// Degenerate zero-variance groups: identical means are a sure null,
		// different means a sure effect.
		if meanT == meanC {
			return 1
		}
		return 0
	}

	t := (meanT - meanC) / se
	df := (vc + vt) * (vc + vt) /
		(vc*vc/float64(nC-1) + vt*vt/float64(nT-1))
	if df <= 0 || math.IsNaN(df) {
		return 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

func pooledStd(stdC float64, nC int, stdT float64, nT int) float64 {
	if nC+nT <= 2 {
		return 0
	}
	v := (float64(nC-1)*stdC*stdC + float64(nT-1)*stdT*stdT) / float64(nC+nT-2)
	return math.Sqrt(v)
}

// sampleStd is the unbiased standard deviation, 0 when undefined.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stat.StdDev(xs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// zeroEffectSampleSize is returned when the requested detectable effect is
// exactly zero, which would otherwise divide by zero.
const zeroEffectSampleSize = 10000

// SampleSize returns the required per-group sample size for a two-proportion
// z-test: baselineRate is the control conversion rate, mde the relative
// minimum detectable effect, power the target statistical power.
func SampleSize(baselineRate, mde, power, alpha float64) int {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultSignificanceLevel
	}

	treatmentRate := baselineRate * (1 + mde)
	effect := math.Abs(treatmentRate - baselineRate)
	if effect == 0 {
		return zeroEffectSampleSize
	}

	pooled := (baselineRate + treatmentRate) / 2
	zAlpha := unitNormal.Quantile(1 - alpha/2)
	zBeta := unitNormal.Quantile(power)
	variance := 2 * pooled * (1 - pooled)

	n := variance * (zAlpha + zBeta) * (zAlpha + zBeta) / (effect * effect)
	return int(math.Ceil(n))
}
