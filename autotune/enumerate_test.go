package autotune

import (
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

func enumerateTestObs(t *testing.T) dedisp.Observation {
	t.Helper()
	obs, err := dedisp.NewObservation(
		8, 1300, 10, 4,
		dedisp.DMRange{Count: 4, First: 0, Step: 10},
		dedisp.DMRange{Count: 16, First: 0, Step: 2.5},
		1, 1, 256, 1, 64,
	)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	return obs
}

func smallBounds() dedisp.TuningBounds {
	return dedisp.TuningBounds{
		MinThreads: 1, MaxThreads: 256,
		MaxRows: 4, MaxColumns: 64,
		MaxItems: 32, MaxSampleItems: 2, MaxDMItems: 2,
		MaxUnroll: 4, VectorWidth: 0,
	}
}

func TestEnumerateIsDeterministic(t *testing.T) {
	obs := enumerateTestObs(t)
	tp := dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}
	a := Enumerate(smallBounds(), obs, dedisp.ModeDirect, tp, 8)
	b := Enumerate(smallBounds(), obs, dedisp.ModeDirect, tp, 8)

	if len(a) == 0 {
		t.Fatal("Enumerate returned no candidates for a reasonable bound set")
	}
	if len(a) != len(b) {
		t.Fatalf("len(a)=%d != len(b)=%d across identical calls", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candidate %d differs across identical calls: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEnumerateOnlyReturnsLegalConfigurations(t *testing.T) {
	obs := enumerateTestObs(t)
	tp := dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}
	bounds := smallBounds()
	candidates := Enumerate(bounds, obs, dedisp.ModeDirect, tp, 8)
	for _, cfg := range candidates {
		if err := cfg.Legal(obs, dedisp.ModeDirect, tp, bounds, 8); err != nil {
			t.Fatalf("Enumerate produced an illegal candidate %+v: %v", cfg, err)
		}
		if cfg.SplitBatches {
			t.Fatalf("Enumerate produced a split_batches candidate %+v", cfg)
		}
	}
}

func TestEnumerateNeverReturnsSplitBatches(t *testing.T) {
	obs := enumerateTestObs(t)
	tp := dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"}
	for _, cfg := range Enumerate(smallBounds(), obs, dedisp.ModeDirect, tp, 8) {
		if cfg.SplitBatches {
			t.Fatal("split_batches candidate leaked through Enumerate")
		}
	}
}
