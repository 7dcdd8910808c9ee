package abtest

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// Config names an experiment and its group labels.
type Config struct {
	Name              string
	Description       string
	ControlName       string
	TreatmentName     string
	SignificanceLevel float64
}

// Assignment maps a user to an experiment variant.
type Assignment struct {
	UserID     string
	Experiment string
	Variant    string
}

// Framework tracks experiments, their user assignments, and results. It is
// not safe for concurrent use; give each analysis run its own instance.
type Framework struct {
	significanceLevel float64
	experiments       map[string]Config
	assignments       map[string]map[string]string // experiment -> user -> variant
	results           map[string]Result
}

func New(significanceLevel float64) *Framework {
	if significanceLevel <= 0 || significanceLevel >= 1 {
		significanceLevel = DefaultSignificanceLevel
	}
	return &Framework{
		significanceLevel: significanceLevel,
		experiments:       make(map[string]Config),
		assignments:       make(map[string]map[string]string),
		results:           make(map[string]Result),
	}
}

// CreateExperiment registers an experiment with explicit group membership.
func (f *Framework) CreateExperiment(name string, control, treatment []string, description string) {
	f.experiments[name] = Config{
		Name:              name,
		Description:       description,
		ControlName:       "control",
		TreatmentName:     "treatment",
		SignificanceLevel: f.significanceLevel,
	}

	variants := make(map[string]string, len(control)+len(treatment))
	for _, id := range control {
		variants[id] = "control"
	}
	for _, id := range treatment {
		variants[id] = "treatment"
	}
	f.assignments[name] = variants

	log.WithFields(log.Fields{
		"experiment": name,
		"control":    len(control),
		"treatment":  len(treatment),
	}).Info("created experiment")
}

// LoadAssignments registers an experiment from a pre-built assignment
// table, e.g. one loaded from CSV.
func (f *Framework) LoadAssignments(name string, assignments []Assignment) {
	var control, treatment []string
	for _, a := range assignments {
		if a.Experiment != "" && a.Experiment != name {
			continue
		}
		if a.Variant == "treatment" {
			treatment = append(treatment, a.UserID)
		} else {
			control = append(control, a.UserID)
		}
	}
	f.CreateExperiment(name, control, treatment, "")
}

// AssignRandomly splits user IDs into control and treatment with a seeded
// shuffle.
func AssignRandomly(userIDs []string, treatmentRatio float64, seed uint64) (control, treatment []string) {
	rng := rand.New(rand.NewSource(seed))
	shuffled := make([]string, len(userIDs))
	copy(shuffled, userIDs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	split := int(float64(len(shuffled)) * (1 - treatmentRatio))
	return shuffled[:split], shuffled[split:]
}

// Analyze evaluates one metric for a registered experiment. metrics holds
// one observation per user; users without an assignment are ignored.
func (f *Framework) Analyze(name string, metrics map[string]float64) (Result, error) {
	variants, ok := f.assignments[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown experiment %q", name)
	}

	var control, treatment []float64
	for userID, value := range metrics {
		switch variants[userID] {
		case "control":
			control = append(control, value)
		case "treatment":
			treatment = append(treatment, value)
		}
	}

	result := Evaluate(control, treatment, f.significanceLevel)
	f.results[name] = result

	log.WithFields(log.Fields{
		"experiment":  name,
		"p_value":     result.PValue,
		"significant": result.IsSignificant,
	}).Info("analyzed experiment")
	return result, nil
}

// Report renders the plain-text experiment report.
func (f *Framework) Report(name string) (string, error) {
	r, ok := f.results[name]
	if !ok {
		return "", fmt.Errorf("no results for experiment %q: run Analyze first", name)
	}
	return FormatReport(name, r), nil
}

// FormatReport renders a result as the plain-text summary handed to
// stakeholders.
func FormatReport(name string, r Result) string {
	verdict := "NO"
	if r.IsSignificant {
		verdict = "YES"
	}

	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "A/B TEST: %s\n", name)
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Control: %d users, Mean: %.4f\n", r.ControlN, r.ControlMean)
	fmt.Fprintf(&b, "Treatment: %d users, Mean: %.4f\n", r.TreatmentN, r.TreatmentMean)
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Effect: %+.4f (%+.2f%%)\n", r.AbsoluteEffect, r.RelativeEffect*100)
	fmt.Fprintf(&b, "95%% CI: [%.4f, %.4f]\n", r.ConfidenceInterval[0], r.ConfidenceInterval[1])
	fmt.Fprintf(&b, "P-value: %.4f\n", r.PValue)
	fmt.Fprintf(&b, "Significant: %s\n", verdict)
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}

// Simulate runs a seeded synthetic experiment: a binomial conversion metric
// with the given relative uplift on the treatment side.
func Simulate(nUsers int, effect float64, seed uint64) Result {
	rng := rand.New(rand.NewSource(seed))

	controlN := nUsers / 2
	treatmentN := nUsers - controlN

	control := make([]float64, controlN)
	for i := range control {
		if rng.Float64() < 0.30 {
			control[i] = 1
		}
	}
	treatment := make([]float64, treatmentN)
	rate := 0.30 * (1 + effect)
	for i := range treatment {
		if rng.Float64() < rate {
			treatment[i] = 1
		}
	}

	return Evaluate(control, treatment, DefaultSignificanceLevel)
}
