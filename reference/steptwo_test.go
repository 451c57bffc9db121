package reference

import (
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

func zeroDispersionStepTwoObs(t *testing.T) dedisp.Observation {
	t.Helper()
	obs, err := dedisp.NewObservation(
		4, 1400, -10, 2,
		dedisp.DMRange{Count: 1, First: 0, Step: 0},
		dedisp.DMRange{Count: 1, First: 0, Step: 0},
		1, 1, 4, 1, 0,
	)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	return obs
}

func TestStepTwoSumsSubbandsAtZeroDM(t *testing.T) {
	obs := zeroDispersionStepTwoObs(t)
	beamMap := dedisp.IdentityBeamMapping(1, obs.NrSubbands, 1)
	subbandShifts := []float32{0, 0}

	subbandedStride := 4
	// subbanded indexed [beam][coarseDM][subband][sample]; beam=0, cd=0.
	subbanded := make([]int32, obs.NrSubbands*subbandedStride)
	for s := 0; s < obs.NrSubbands; s++ {
		for t2 := 0; t2 < subbandedStride; t2++ {
			subbanded[s*subbandedStride+t2] = int32(5 + 2*s) // subband0=5, subband1=7
		}
	}

	out := StepTwo[int32, int32, int32](obs, beamMap, subbandShifts, subbanded, subbandedStride, subbandedStride)

	want := int32(5 + 7)
	for t2 := 0; t2 < 4; t2++ {
		if got := out[t2]; got != want {
			t.Fatalf("out[%d] = %d, want %d", t2, got, want)
		}
	}
}
