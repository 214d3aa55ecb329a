// Package priorshift estimates and corrects for label (prior) shift: the
// situation where a classifier was calibrated on a validation population whose
// class frequencies differ from those of a target population, while the
// class-conditional feature distributions stay the same. An Adapter fits
// per-class frequency ratios from posterior probabilities and returns an
// AdapterFunc which re-weights any future batch of posteriors to approximate
// the posterior under the target class frequencies.
package priorshift

import (
	"gonum.org/v1/gonum/mat"
)

// Format identifies the layout a batch of probabilities or labels arrived in.
type Format int

const (
	// FormatMatrix is the full softmax layout: one column per class.
	FormatMatrix Format = iota
	// FormatVector is the binary shorthand: a vector of class-0 probabilities.
	FormatVector
	// FormatColumn is the binary shorthand as a single-column matrix.
	FormatColumn
)

// Probs holds a batch of posterior probabilities, or one-hot labels, in full
// softmax format. The layout the values arrived in is remembered so results
// can be handed back the same way. Probabilities and labels share this
// representation; conversion happens once on construction and once when a
// result is read back out.
type Probs struct {
	format Format
	dense  *mat.Dense
}

// FromVector wraps a binary-shorthand vector of class-0 probabilities. The
// vector is expanded to two columns: column 0 holds the supplied values and
// column 1 holds their complement.
func FromVector(values []float64) Probs {
	d := mat.NewDense(len(values), 2, nil)
	for i, v := range values {
		d.Set(i, 0, v)
		d.Set(i, 1, 1-v)
	}
	return Probs{format: FormatVector, dense: d}
}

// FromMatrix wraps probabilities or labels already laid out as a matrix.
// A single-column matrix is treated as binary shorthand and expanded, the
// same way FromVector expands a vector.
func FromMatrix(values *mat.Dense) Probs {
	r, c := values.Dims()
	if c == 1 {
		d := mat.NewDense(r, 2, nil)
		for i := 0; i < r; i++ {
			d.Set(i, 0, values.At(i, 0))
			d.Set(i, 1, 1-values.At(i, 0))
		}
		return Probs{format: FormatColumn, dense: d}
	}
	return Probs{format: FormatMatrix, dense: values}
}

// Format reports the layout the values arrived in.
func (p Probs) Format() Format {
	return p.format
}

// Dense returns the values in full softmax format. The caller must not
// mutate the returned matrix.
func (p Probs) Dense() *mat.Dense {
	return p.dense
}

// Classes returns the number of classes.
func (p Probs) Classes() int {
	_, c := p.dense.Dims()
	return c
}

// Len returns the number of examples.
func (p Probs) Len() int {
	r, _ := p.dense.Dims()
	return r
}

// Vector collapses a binary-shorthand batch back to a vector. Following the
// shorthand convention, the values returned are the probabilities of the
// positive (second) class.
func (p Probs) Vector() []float64 {
	r, _ := p.dense.Dims()
	v := make([]float64, r)
	for i := 0; i < r; i++ {
		v[i] = p.dense.At(i, 1)
	}
	return v
}

// Matrix returns the values in the layout they arrived in: the full matrix
// for FormatMatrix, or a single column of positive-class probabilities for
// the binary shorthand layouts.
func (p Probs) Matrix() *mat.Dense {
	if p.format == FormatMatrix {
		return p.dense
	}
	r, _ := p.dense.Dims()
	col := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		col.Set(i, 0, p.dense.At(i, 1))
	}
	return col
}

// collapse attaches an inbound layout to a transformed softmax matrix.
func collapse(format Format, dense *mat.Dense) Probs {
	return Probs{format: format, dense: dense}
}

// HardPreds converts soft posterior probabilities to one-hot hard predictions
// by row-wise argmax. Ties resolve to the lowest class index.
func HardPreds(probs *mat.Dense) *mat.Dense {
	r, c := probs.Dims()
	hard := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if probs.At(i, j) > probs.At(i, best) {
				best = j
			}
		}
		hard.Set(i, best, 1)
	}
	return hard
}
