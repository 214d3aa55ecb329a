package priorshift

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Calibrator recalibrates a batch of posterior probabilities. Calibrators are
// pure functions: they never mutate their input and hold no mutable state, so
// a single calibrator may be shared by every AdapterFunc produced from the
// same fit.
type Calibrator func(probs *mat.Dense) *mat.Dense

// CalibratorFactory fits a Calibrator on validation model outputs.
// posteriorSupplied indicates that validPreacts already contains posterior
// probabilities rather than raw pre-activations.
type CalibratorFactory func(validPreacts, validLabels *mat.Dense, posteriorSupplied bool) (Calibrator, error)

// Adapter fits a prior shift correction from validation labels, validation
// posterior probabilities, and the initial posterior probabilities of the
// target population whose class balance is to be estimated.
type Adapter interface {
	Adapt(validLabels, tofit, valid Probs) (*AdapterFunc, error)
}

// WeightEstimator estimates the per-class ratios between the target and
// validation class frequencies.
type WeightEstimator interface {
	Weights(validLabels, tofit, valid Probs) ([]float64, error)
}

// AdapterFunc corrects posterior probabilities for prior shift by applying a
// calibrator, scaling each class column by its fitted multiplier, and
// renormalising each row to sum to one. An AdapterFunc is immutable once
// constructed and safe to apply to any number of batches.
//
// Rows whose probability mass falls entirely on zero-multiplier classes
// renormalise to NaN; supplying such a multiplier vector is a degenerate use
// and is not guarded against.
type AdapterFunc struct {
	// Multipliers is the fitted per-class ratio of target frequency to
	// validation frequency.
	Multipliers []float64

	calibrate Calibrator
}

// NewAdapterFunc creates an AdapterFunc from a multiplier vector and an
// optional calibrator. A nil calibrator means no recalibration.
func NewAdapterFunc(multipliers []float64, calibrate Calibrator) *AdapterFunc {
	if calibrate == nil {
		calibrate = identityCalibrator
	}
	return &AdapterFunc{
		Multipliers: multipliers,
		calibrate:   calibrate,
	}
}

// Apply corrects a batch of posterior probabilities, returning them in the
// same layout they arrived in. Binary-shorthand input collapses back to the
// positive-class column, as described on Probs.Vector.
func (f *AdapterFunc) Apply(p Probs) Probs {
	probs := f.calibrate(p.Dense())
	r, c := probs.Dims()
	adapted := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			v := probs.At(i, j) * f.Multipliers[j]
			adapted.Set(i, j, v)
			sum += v
		}
		for j := 0; j < c; j++ {
			adapted.Set(i, j, adapted.At(i, j)/sum)
		}
	}
	return collapse(p.Format(), adapted)
}

// NoWeightShift is the trivial weight estimator: it assumes the target class
// frequencies match the validation frequencies and returns all ones. It is
// the default initialisation for EMAdapter.
type NoWeightShift struct{}

// Weights returns a vector of ones, one per class.
func (NoWeightShift) Weights(validLabels, tofit, valid Probs) ([]float64, error) {
	w := make([]float64, valid.Classes())
	for i := range w {
		w[i] = 1
	}
	return w, nil
}

// WeightsFromAdapter adapts any Adapter into a weight-only estimator by
// fitting it and exposing just the multiplier vector, discarding the
// calibrator. Wrapping a BBSEAdapter this way gives EMAdapter a closed-form
// starting point that speeds up convergence.
type WeightsFromAdapter struct {
	Adapter Adapter
}

// Weights fits the wrapped adapter and returns its multipliers.
func (w WeightsFromAdapter) Weights(validLabels, tofit, valid Probs) ([]float64, error) {
	f, err := w.Adapter.Adapt(validLabels, tofit, valid)
	if err != nil {
		return nil, err
	}
	return f.Multipliers, nil
}

func identityCalibrator(probs *mat.Dense) *mat.Dense {
	return probs
}

// columnMeans computes the mean of each column of m.
func columnMeans(m *mat.Dense) []float64 {
	_, c := m.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, m), nil)
	}
	return means
}
