package priorshift

import (
	"gonum.org/v1/gonum/mat"
	"log"
)

// BBSEAdapter estimates prior shift with black-box shift estimation: the
// observed prediction marginal on the target set is related to the true
// target label marginal through the validation joint distribution of
// (prediction, label), which is assumed invariant under label shift.
// Inverting that joint matrix yields the per-class weights in closed form.
type BBSEAdapter struct {
	// Soft uses soft probabilities for both the joint matrix and the target
	// marginal; otherwise hard argmax predictions are used.
	Soft bool
	// Verbose logs a diagnostic when negative weight estimates are clipped.
	Verbose bool
	// Calibration optionally recalibrates posteriors before estimation.
	// When set, validation labels must be supplied to Adapt.
	Calibration CalibratorFactory
}

// BBSESoft configures a BBSEAdapter to use soft probabilities.
func BBSESoft(soft bool) func(*BBSEAdapter) {
	return func(a *BBSEAdapter) {
		a.Soft = soft
	}
}

// BBSEVerbose configures a BBSEAdapter to log clipping diagnostics.
func BBSEVerbose(verbose bool) func(*BBSEAdapter) {
	return func(a *BBSEAdapter) {
		a.Verbose = verbose
	}
}

// BBSECalibration configures a BBSEAdapter to recalibrate posteriors with a
// calibrator fit on the validation set.
func BBSECalibration(factory CalibratorFactory) func(*BBSEAdapter) {
	return func(a *BBSEAdapter) {
		a.Calibration = factory
	}
}

// NewBBSEAdapter creates a BBSEAdapter using hard predictions and no
// calibration.
func NewBBSEAdapter(options ...func(*BBSEAdapter)) *BBSEAdapter {
	a := &BBSEAdapter{}
	for _, option := range options {
		option(a)
	}
	return a
}

// Adapt solves for the per-class weights and returns the correction
// function. When the validation predictions are degenerate, for example a
// class that is never predicted, the joint matrix is singular and the
// inversion error is returned as-is.
func (a BBSEAdapter) Adapt(validLabels, tofit, valid Probs) (*AdapterFunc, error) {
	calibrate := Calibrator(identityCalibrator)
	if a.Calibration != nil {
		var err error
		calibrate, err = a.Calibration(valid.Dense(), validLabels.Dense(), true)
		if err != nil {
			return nil, err
		}
	}

	validProbs := calibrate(valid.Dense())
	tofitProbs := calibrate(tofit.Dense())
	labels := validLabels.Dense()

	var mu []float64
	if a.Soft {
		mu = columnMeans(tofitProbs)
	} else {
		mu = columnMeans(HardPreds(tofitProbs))
	}

	preds := validProbs
	if !a.Soft {
		preds = HardPreds(validProbs)
	}

	// The unnormalised joint distribution of (prediction, true label) over
	// the validation set.
	n, k := preds.Dims()
	joint := mat.NewDense(k, k, nil)
	for i := 0; i < n; i++ {
		for p := 0; p < k; p++ {
			for t := 0; t < k; t++ {
				joint.Set(p, t, joint.At(p, t)+preds.At(i, p)*labels.At(i, t))
			}
		}
	}
	joint.Scale(1/float64(n), joint)

	var inverse mat.Dense
	if err := inverse.Inverse(joint); err != nil {
		return nil, err
	}
	weights := mat.NewVecDense(k, nil)
	weights.MulVec(&inverse, mat.NewVecDense(k, mu))

	multipliers := make([]float64, k)
	clipped := false
	for j := 0; j < k; j++ {
		multipliers[j] = weights.AtVec(j)
		if multipliers[j] < 0 {
			multipliers[j] = 0
			clipped = true
		}
	}
	if clipped && a.Verbose {
		log.Println("some estimated weights were negative and have been clipped to zero")
	}
	return NewAdapterFunc(multipliers, calibrate), nil
}
