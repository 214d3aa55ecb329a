// Package calibration provides implementations of the priorshift calibrator
// factory contract: post-hoc recalibration functions fit on validation model
// outputs and applied to arbitrary posterior probability matrices.
package calibration

import (
	"github.com/hscells/priorshift"
	"gonum.org/v1/gonum/mat"
	"math"
)

// None is a calibrator factory that performs no recalibration.
func None(validPreacts, validLabels *mat.Dense, posteriorSupplied bool) (priorshift.Calibrator, error) {
	return func(probs *mat.Dense) *mat.Dense {
		return probs
	}, nil
}

// InverseSoftmax recovers logits from posterior probabilities, up to an
// additive constant per row which softmax ignores. Each logit is the log
// probability centred by the row mean of the log probabilities.
func InverseSoftmax(probs *mat.Dense) *mat.Dense {
	r, c := probs.Dims()
	logits := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		var mean float64
		for j := 0; j < c; j++ {
			v := math.Log(probs.At(i, j))
			logits.Set(i, j, v)
			mean += v
		}
		mean /= float64(c)
		for j := 0; j < c; j++ {
			logits.Set(i, j, logits.At(i, j)-mean)
		}
	}
	return logits
}

// softmax maps logits to row-normalised probabilities, shifting by the row
// maximum for numerical stability.
func softmax(logits *mat.Dense) *mat.Dense {
	r, c := logits.Dims()
	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		max := logits.At(i, 0)
		for j := 1; j < c; j++ {
			if logits.At(i, j) > max {
				max = logits.At(i, j)
			}
		}
		var sum float64
		for j := 0; j < c; j++ {
			v := math.Exp(logits.At(i, j) - max)
			probs.Set(i, j, v)
			sum += v
		}
		for j := 0; j < c; j++ {
			probs.Set(i, j, probs.At(i, j)/sum)
		}
	}
	return probs
}
