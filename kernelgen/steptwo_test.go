package kernelgen

import (
	"strings"
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

func stepTwoTestParams(t *testing.T) Params {
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
			ThreadsD0: 32, ThreadsD1: 4, ThreadsD2: 1,
			ItemsD0: 1, ItemsD1: 4, ItemsD2: 1,
			Unroll: 1,
		},
		Obs: obs,
		Types: dedisp.TypePlan{InputBits: 32, InputType: "float", Intermediate: "float", OutputType: "float"},
		Shifts: dedisp.ComputeShiftsStepTwo(obs),
	}
}

func TestGenerateStepTwoProducesWellFormedSource(t *testing.T) {
	p := stepTwoTestParams(t)
	src, err := GenerateStepTwo(p)
	if err != nil {
		t.Fatalf("GenerateStepTwo: %v", err)
	}
	if !strings.Contains(src, "__kernel void dedispersionStepTwo(") {
		t.Fatal("generated source missing the dedispersionStepTwo entry point signature")
	}
	if !strings.Contains(src, "coarseDM") || !strings.Contains(src, "fineDM") {
		t.Fatal("generated source missing the coarseDM/fineDM decomposition")
	}
	if strings.Contains(src, "zappedChannels") {
		t.Fatal("step-two kernel must not reference zappedChannels")
	}
	assertNoUnresolvedHoles(t, src)
}

func TestGenerateStepTwoRejectsSplitBatches(t *testing.T) {
	p := stepTwoTestParams(t)
	p.Config.SplitBatches = true
	if _, err := GenerateStepTwo(p); err != dedisp.ErrSplitBatchesUnsupported {
		t.Fatalf("GenerateStepTwo with split_batches = %v, want ErrSplitBatchesUnsupported", err)
	}
}
