package calibration

import (
	"github.com/go-errors/errors"
	"github.com/hscells/priorshift"
	"gonum.org/v1/gonum/mat"
	"sort"
)

// NewIsotonic returns a calibrator factory for binary problems that fits a
// monotone mapping from predicted positive-class probability to observed
// positive rate using pool-adjacent-violators regression. Applying the
// calibrator replaces the positive-class column with the fitted value,
// interpolated linearly between knots and clamped at the ends, and sets the
// negative-class column to its complement.
func NewIsotonic() priorshift.CalibratorFactory {
	return func(validPreacts, validLabels *mat.Dense, posteriorSupplied bool) (priorshift.Calibrator, error) {
		if validLabels == nil {
			return nil, errors.New("isotonic calibration requires validation labels")
		}
		if _, c := validPreacts.Dims(); c != 2 {
			return nil, errors.New("isotonic calibration only supports binary problems")
		}

		r, _ := validPreacts.Dims()
		points := make([]isoPoint, r)
		for i := 0; i < r; i++ {
			points[i] = isoPoint{
				score:  validPreacts.At(i, 1),
				target: validLabels.At(i, 1),
			}
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].score < points[j].score
		})
		scores, fitted := pav(points)

		return func(probs *mat.Dense) *mat.Dense {
			n, c := probs.Dims()
			calibrated := mat.NewDense(n, c, nil)
			for i := 0; i < n; i++ {
				p := interpolate(scores, fitted, probs.At(i, 1))
				calibrated.Set(i, 0, 1-p)
				calibrated.Set(i, 1, p)
			}
			return calibrated
		}, nil
	}
}

type isoPoint struct {
	score  float64
	target float64
}

// pav pools adjacent violators over score-sorted points, returning the knot
// scores and their fitted monotone non-decreasing values. Tied scores pool
// into a single knot.
func pav(points []isoPoint) (scores, fitted []float64) {
	type block struct {
		sum    float64
		weight float64
		score  float64
	}
	blocks := make([]block, 0, len(points))
	for _, p := range points {
		blocks = append(blocks, block{sum: p.target, weight: 1, score: p.score})
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.sum/prev.weight <= last.sum/last.weight && prev.score != last.score {
				break
			}
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1] = block{
				sum:    prev.sum + last.sum,
				weight: prev.weight + last.weight,
				score:  last.score,
			}
		}
	}
	scores = make([]float64, len(blocks))
	fitted = make([]float64, len(blocks))
	for i, b := range blocks {
		scores[i] = b.score
		fitted[i] = b.sum / b.weight
	}
	return scores, fitted
}

// interpolate evaluates the fitted step curve at score, linearly between
// knots and clamped beyond the ends.
func interpolate(scores, fitted []float64, score float64) float64 {
	if len(scores) == 0 {
		return score
	}
	if score <= scores[0] {
		return fitted[0]
	}
	if score >= scores[len(scores)-1] {
		return fitted[len(fitted)-1]
	}
	i := sort.SearchFloat64s(scores, score)
	// scores[i-1] < score <= scores[i]
	span := scores[i] - scores[i-1]
	if span == 0 {
		return fitted[i]
	}
	t := (score - scores[i-1]) / span
	return fitted[i-1] + t*(fitted[i]-fitted[i-1])
}
