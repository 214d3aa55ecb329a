package priorshift_test

import (
	"github.com/hscells/priorshift"
	"testing"
)

func TestEMNoShift(t *testing.T) {
	labels, probs := mixedScenario()
	f, err := priorshift.NewEMAdapter().Adapt(
		priorshift.FromMatrix(labels),
		priorshift.FromMatrix(probs),
		priorshift.FromMatrix(probs),
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range f.Multipliers {
		approxEqual(t, m, 1, 1e-6)
	}

	// With all-ones multipliers the adapter is the identity on
	// probabilities, up to renormalisation.
	adapted := f.Apply(priorshift.FromMatrix(probs)).Matrix()
	r, c := probs.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			approxEqual(t, adapted.At(i, j), probs.At(i, j), 1e-6)
		}
	}
}

func TestEMShifted(t *testing.T) {
	labels, validProbs := validationScenario()
	tofitProbs := shiftedScenario()
	f, err := priorshift.NewEMAdapter().Adapt(
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

func TestEMSeededWithBBSE(t *testing.T) {
	labels, validProbs := validationScenario()
	tofitProbs := shiftedScenario()
	f, err := priorshift.NewEMAdapter(
		priorshift.EMInit(priorshift.WeightsFromAdapter{Adapter: priorshift.NewBBSEAdapter()}),
	).Adapt(
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

func TestEMIterationCapIsNormalExit(t *testing.T) {
	labels, validProbs := validationScenario()
	tofitProbs := shiftedScenario()
	// A cap of one iteration cannot converge on a real shift, but the
	// adapter still returns its best estimate rather than failing.
	f, err := priorshift.NewEMAdapter(priorshift.EMMaxIterations(1)).Adapt(
		priorshift.FromMatrix(labels),
		priorshift.FromMatrix(tofitProbs),
		priorshift.FromMatrix(validProbs),
	)
	if err != nil {
		t.Fatal(err)
	}
	if f.Multipliers[0] <= 1 {
		t.Fatalf("expected the first iteration to move towards the shift, got %v", f.Multipliers[0])
	}
}

func TestEMEstimateImprovesWithIterations(t *testing.T) {
	labels, validProbs := validationScenario()
	tofitProbs := shiftedScenario()

	estimate := func(iterations int) float64 {
		f, err := priorshift.NewEMAdapter(priorshift.EMMaxIterations(iterations)).Adapt(
			priorshift.FromMatrix(labels),
			priorshift.FromMatrix(tofitProbs),
			priorshift.FromMatrix(validProbs),
		)
		if err != nil {
			t.Fatal(err)
		}
		return f.Multipliers[0]
	}

	converged := estimate(100)
	distance := func(iterations int) float64 {
		d := estimate(iterations) - converged
		if d < 0 {
			d = -d
		}
		return d
	}

	one, five, hundred := distance(1), distance(5), distance(100)
	if five > one {
		t.Fatalf("estimate got worse between 1 (%v away) and 5 (%v away) iterations", one, five)
	}
	if hundred > five {
		t.Fatalf("estimate got worse between 5 (%v away) and 100 (%v away) iterations", five, hundred)
	}
}

func TestEMBinaryShorthandInputs(t *testing.T) {
	labels, validProbs := validationScenario()
	tofitProbs := shiftedScenario()

	r, _ := labels.Dims()
	labelVec := make([]float64, r)
	validVec := make([]float64, r)
	tofitVec := make([]float64, r)
	for i := 0; i < r; i++ {
		labelVec[i] = labels.At(i, 0)
		validVec[i] = validProbs.At(i, 0)
		tofitVec[i] = tofitProbs.At(i, 0)
	}

	f, err := priorshift.NewEMAdapter().Adapt(
		priorshift.FromVector(labelVec),
		priorshift.FromVector(tofitVec),
		priorshift.FromVector(validVec),
	)
	if err != nil {
		t.Fatal(err)
	}
	approxEqual(t, f.Multipliers[0], 1.6, 0.05)
	approxEqual(t, f.Multipliers[1], 0.4, 0.05)
}
