package calibration

import (
	"github.com/go-errors/errors"
	"github.com/hscells/priorshift"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"math"
)

// NewTempScaling returns a calibrator factory that fits a single softmax
// temperature by minimising the negative log-likelihood on the validation
// set. When posteriorSupplied is true the logits are recovered with
// InverseSoftmax before fitting and before every application; otherwise the
// inputs are taken to be logits already.
func NewTempScaling() priorshift.CalibratorFactory {
	return func(validPreacts, validLabels *mat.Dense, posteriorSupplied bool) (priorshift.Calibrator, error) {
		if validLabels == nil {
			return nil, errors.New("temperature scaling requires validation labels")
		}
		logits := validPreacts
		if posteriorSupplied {
			logits = InverseSoftmax(validPreacts)
		}

		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				if x[0] <= 0 {
					return math.Inf(1)
				}
				return nll(logits, validLabels, x[0])
			},
		}
		result, err := optimize.Minimize(problem, []float64{1}, nil, &optimize.NelderMead{})
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
		temperature := result.X[0]

		return func(probs *mat.Dense) *mat.Dense {
			l := probs
			if posteriorSupplied {
				l = InverseSoftmax(probs)
			}
			r, c := l.Dims()
			scaled := mat.NewDense(r, c, nil)
			scaled.Scale(1/temperature, l)
			return softmax(scaled)
		}, nil
	}
}

// nll computes the mean negative log-likelihood of one-hot labels under the
// temperature-scaled softmax of the logits.
func nll(logits, labels *mat.Dense, temperature float64) float64 {
	r, c := logits.Dims()
	var loss float64
	for i := 0; i < r; i++ {
		max := logits.At(i, 0) / temperature
		for j := 1; j < c; j++ {
			if v := logits.At(i, j) / temperature; v > max {
				max = v
			}
		}
		var sum, truth float64
		for j := 0; j < c; j++ {
			v := math.Exp(logits.At(i, j)/temperature - max)
			sum += v
			truth += labels.At(i, j) * v
		}
		loss -= math.Log(truth / sum)
	}
	return loss / float64(r)
}
