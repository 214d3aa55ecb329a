package priorshift_test

import (
	"github.com/hscells/priorshift"
	"gonum.org/v1/gonum/mat"
	"testing"
)

func TestBBSENoShift(t *testing.T) {
	for _, soft := range []bool{false, true} {
		labels, probs := mixedScenario()
		f, err := priorshift.NewBBSEAdapter(priorshift.BBSESoft(soft)).Adapt(
			priorshift.FromMatrix(labels),
			priorshift.FromMatrix(probs),
			priorshift.FromMatrix(probs),
		)
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range f.Multipliers {
			approxEqual(t, m, 1, 1e-9)
		}
	}
}

func TestBBSEShifted(t *testing.T) {
	for _, soft := range []bool{false, true} {
		labels, validProbs := validationScenario()
		tofitProbs := shiftedScenario()
		f, err := priorshift.NewBBSEAdapter(priorshift.BBSESoft(soft)).Adapt(
			priorshift.FromMatrix(labels),
			priorshift.FromMatrix(tofitProbs),
			priorshift.FromMatrix(validProbs),
		)
		if err != nil {
			t.Fatal(err)
		}
		approxEqual(t, f.Multipliers[0], 1.6, 0.05)
		approxEqual(t, f.Multipliers[1], 0.4, 0.05)
	}
}

func TestBBSEClipsNegativeWeights(t *testing.T) {
	// A noisy validation joint combined with a target marginal more extreme
	// than any mixture the joint can explain drives one weight negative.
	labels := mat.NewDense(100, 2, nil)
	validProbs := mat.NewDense(100, 2, nil)
	for i := 0; i < 100; i++ {
		var label, pred int
		switch {
		case i < 40: // class 0, predicted 0
			label, pred = 0, 0
		case i < 50: // class 0, predicted 1
			label, pred = 0, 1
		case i < 60: // class 1, predicted 0
			label, pred = 1, 0
		default: // class 1, predicted 1
			label, pred = 1, 1
		}
		labels.Set(i, label, 1)
		validProbs.Set(i, pred, 1)
	}
	tofitProbs := mat.NewDense(100, 2, nil)
	for i := 0; i < 100; i++ {
		if i < 95 {
			tofitProbs.Set(i, 0, 1)
		} else {
			tofitProbs.Set(i, 1, 1)
		}
	}

	f, err := priorshift.NewBBSEAdapter().Adapt(
		priorshift.FromMatrix(labels),
		priorshift.FromMatrix(tofitProbs),
		priorshift.FromMatrix(validProbs),
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range f.Multipliers {
		if m < 0 {
			t.Fatalf("negative multiplier %v survived clipping", m)
		}
	}
	// The joint is [[0.4,0.1],[0.1,0.4]] and the marginal [0.95,0.05],
	// which solves to [2.5,-0.5]; the negative entry clips to zero.
	approxEqual(t, f.Multipliers[0], 2.5, 1e-9)
	if f.Multipliers[1] != 0 {
		t.Fatalf("expected the second multiplier to clip to zero, got %v", f.Multipliers[1])
	}
}

func TestBBSESingularJoint(t *testing.T) {
	// A class that is never predicted leaves a zero row in the joint, which
	// must surface as an inversion error.
	labels := mat.NewDense(10, 2, nil)
	validProbs := mat.NewDense(10, 2, nil)
	for i := 0; i < 10; i++ {
		if i < 5 {
			labels.Set(i, 0, 1)
		} else {
			labels.Set(i, 1, 1)
		}
		validProbs.Set(i, 0, 0.9)
		validProbs.Set(i, 1, 0.1)
	}
	_, err := priorshift.NewBBSEAdapter().Adapt(
		priorshift.FromMatrix(labels),
		priorshift.FromMatrix(validProbs),
		priorshift.FromMatrix(validProbs),
	)
	if err == nil {
		t.Fatal("expected an inversion error for a singular joint")
	}
}

func TestBBSEThreeClasses(t *testing.T) {
	// Validation is balanced over three classes with confident, correct
	// predictions; the target set doubles class 2 and drops class 0.
	labels := mat.NewDense(90, 3, nil)
	validProbs := mat.NewDense(90, 3, nil)
	for i := 0; i < 90; i++ {
		class := i / 30
		labels.Set(i, class, 1)
		for j := 0; j < 3; j++ {
			if j == class {
				validProbs.Set(i, j, 0.98)
			} else {
				validProbs.Set(i, j, 0.01)
			}
		}
	}
	tofitProbs := mat.NewDense(90, 3, nil)
	for i := 0; i < 90; i++ {
		class := 1
		if i >= 30 {
			class = 2
		}
		for j := 0; j < 3; j++ {
			if j == class {
				tofitProbs.Set(i, j, 0.98)
			} else {
				tofitProbs.Set(i, j, 0.01)
			}
		}
	}
	f, err := priorshift.NewBBSEAdapter().Adapt(
		priorshift.FromMatrix(labels),
		priorshift.FromMatrix(tofitProbs),
		priorshift.FromMatrix(validProbs),
	)
	if err != nil {
		t.Fatal(err)
	}
	approxEqual(t, f.Multipliers[0], 0, 0.05)
	approxEqual(t, f.Multipliers[1], 1, 0.05)
	approxEqual(t, f.Multipliers[2], 2, 0.05)
}
