package kernelgen

import (
	"strings"
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

func stepOneTestParams(t *testing.T) Params {
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
	return Params{
		Config: dedisp.TuningPointConfig{
			ThreadsD0: 32, ThreadsD1: 2, ThreadsD2: 1,
			ItemsD0: 1, ItemsD1: 2, ItemsD2: 1,
			Unroll: 2,
		},
		Obs: obs,
		Types: dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"},
		Shifts: dedisp.ComputeShifts(obs),
	}
}

func TestGenerateStepOneProducesWellFormedSource(t *testing.T) {
	p := stepOneTestParams(t)
	src, err := GenerateStepOne(p)
	if err != nil {
		t.Fatalf("GenerateStepOne: %v", err)
	}
	if !strings.Contains(src, "__kernel void dedispersionStepOne(") {
		t.Fatal("generated source missing the dedispersionStepOne entry point signature")
	}
	if !strings.Contains(src, "highEdgeChannel") {
		t.Fatal("generated source missing the subband high-edge-channel reference")
	}
	if strings.Contains(src, "beamMapping") {
		t.Fatal("step-one kernel must not reference beamMapping")
	}
	assertNoUnresolvedHoles(t, src)
}

func TestGenerateStepOneRejectsSplitBatches(t *testing.T) {
	p := stepOneTestParams(t)
	p.Config.SplitBatches = true
	if _, err := GenerateStepOne(p); err != dedisp.ErrSplitBatchesUnsupported {
		t.Fatalf("GenerateStepOne with split_batches = %v, want ErrSplitBatchesUnsupported", err)
	}
}
