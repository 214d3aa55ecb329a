package priorshift

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"log"
	"math"
)

// EMAdapter estimates prior shift with the Saerens expectation-maximisation
// procedure: it alternates between re-weighting the target posteriors under
// the current class-frequency hypothesis and re-estimating the frequencies
// as the column means of the re-weighted posteriors, until the estimate
// stops moving or MaxIterations is reached. Hitting the iteration cap is a
// normal exit; the best estimate found so far is returned.
//
// The baseline validation class frequencies are the column means of the
// calibrated validation posteriors, not the empirical label frequencies.
// This guarantees that fitting against the validation posteriors themselves
// estimates no shift at all.
type EMAdapter struct {
	// Verbose logs the frequency estimates and the final delta.
	Verbose bool
	// Tolerance stops the iteration once the sum of absolute per-class
	// frequency changes falls to it or below.
	Tolerance float64
	// MaxIterations bounds the iteration when the tolerance is never met.
	MaxIterations int
	// Calibration optionally recalibrates posteriors before estimation.
	// When set, validation labels must be supplied to Adapt.
	Calibration CalibratorFactory
	// Init seeds the target class-frequency estimate. NoWeightShift starts
	// the iteration at the validation frequencies.
	Init WeightEstimator
}

// EMVerbose configures an EMAdapter to log estimation progress.
func EMVerbose(verbose bool) func(*EMAdapter) {
	return func(a *EMAdapter) {
		a.Verbose = verbose
	}
}

// EMTolerance configures the convergence tolerance of an EMAdapter.
func EMTolerance(tolerance float64) func(*EMAdapter) {
	return func(a *EMAdapter) {
		a.Tolerance = tolerance
	}
}

// EMMaxIterations configures the iteration cap of an EMAdapter.
func EMMaxIterations(n int) func(*EMAdapter) {
	return func(a *EMAdapter) {
		a.MaxIterations = n
	}
}

// EMCalibration configures an EMAdapter to recalibrate posteriors with a
// calibrator fit on the validation set.
func EMCalibration(factory CalibratorFactory) func(*EMAdapter) {
	return func(a *EMAdapter) {
		a.Calibration = factory
	}
}

// EMInit configures the estimator that seeds the class-frequency iteration,
// for example WeightsFromAdapter around a BBSEAdapter.
func EMInit(estimator WeightEstimator) func(*EMAdapter) {
	return func(a *EMAdapter) {
		a.Init = estimator
	}
}

// NewEMAdapter creates an EMAdapter with a tolerance of 1e-6, a cap of 100
// iterations, no calibration, and a NoWeightShift initialisation.
func NewEMAdapter(options ...func(*EMAdapter)) *EMAdapter {
	a := &EMAdapter{
		Tolerance:     1e-6,
		MaxIterations: 100,
		Init:          NoWeightShift{},
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Adapt fits the target class frequencies and returns the correction
// function. A zero-frequency validation class is a degenerate input and
// surfaces as non-finite multipliers rather than an error.
func (a EMAdapter) Adapt(validLabels, tofit, valid Probs) (*AdapterFunc, error) {
	calibrate := Calibrator(identityCalibrator)
	if a.Calibration != nil {
		var err error
		calibrate, err = a.Calibration(valid.Dense(), validLabels.Dense(), true)
		if err != nil {
			return nil, err
		}
	}

	validProbs := calibrate(valid.Dense())
	validFreq := columnMeans(validProbs)
	if a.Verbose {
		log.Printf("validation class frequencies: %v", validFreq)
	}

	tofitProbs := calibrate(tofit.Dense())

	// Seed the target frequency estimate, renormalising because estimators
	// like BBSE do not guarantee weights that produce valid probabilities.
	seed, err := a.Init.Weights(validLabels, collapse(FormatMatrix, tofitProbs), valid)
	if err != nil {
		return nil, err
	}
	k := len(validFreq)
	freq := make([]float64, k)
	for j := 0; j < k; j++ {
		freq[j] = validFreq[j] * seed[j]
	}
	floats.Scale(1/floats.Sum(freq), freq)

	n, _ := tofitProbs.Dims()
	posterior := mat.NewDense(n, k, nil)
	delta := math.Inf(1)
	var iterations int
	for iterations = 0; iterations < a.MaxIterations; iterations++ {
		// E step: the target posterior under the current frequency
		// hypothesis is the calibrated posterior re-weighted by the
		// frequency ratio, renormalised per row.
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < k; j++ {
				v := tofitProbs.At(i, j) * freq[j] / validFreq[j]
				posterior.Set(i, j, v)
				sum += v
			}
			for j := 0; j < k; j++ {
				posterior.Set(i, j, posterior.At(i, j)/sum)
			}
		}
		// M step: re-estimate the frequencies from the updated posteriors.
		next := columnMeans(posterior)
		delta = 0
		for j := 0; j < k; j++ {
			delta += math.Abs(next[j] - freq[j])
		}
		copy(freq, next)
		if delta <= a.Tolerance {
			iterations++
			break
		}
	}
	if a.Verbose {
		log.Printf("finished after %d iteration(s) with delta %v", iterations, delta)
		log.Printf("target class frequencies: %v", freq)
	}

	multipliers := make([]float64, k)
	for j := 0; j < k; j++ {
		multipliers[j] = freq[j] / validFreq[j]
	}
	if a.Verbose {
		log.Printf("multipliers: %v", multipliers)
	}
	return NewAdapterFunc(multipliers, calibrate), nil
}
