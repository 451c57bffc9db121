package reference

import (
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

func zeroDispersionSubbandObs(t *testing.T) dedisp.Observation {
	t.Helper()
	obs, err := dedisp.NewObservation(
		4, 1400, -10, 2,
		dedisp.DMRange{Count: 1, First: 0, Step: 0},
		dedisp.DMRange{},
		1, 1, 4, 1, 0,
	)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	return obs
}

func TestStepOneSumsChannelsPerSubbandAtZeroDM(t *testing.T) {
	obs := zeroDispersionSubbandObs(t)
	zap := dedisp.NewZapMask(4)
	channelShifts := []float32{0, 0, 0, 0}

	dispersedStride := 4
	input := make([]int32, obs.NrChannels*dispersedStride)
	for c := 0; c < obs.NrChannels; c++ {
		for s := 0; s < dispersedStride; s++ {
			input[c*dispersedStride+s] = int32(c + 1)
		}
	}

	out := StepOne[int32, int32, int32](obs, zap, channelShifts, input, dispersedStride, dispersedStride)

	// subband 0 = channels {0,1} -> 1+2=3, subband 1 = channels {2,3} -> 3+4=7
	for t2 := 0; t2 < 4; t2++ {
		if got := out[t2]; got != 3 {
			t.Fatalf("subband 0, t=%d: out = %d, want 3", t2, got)
		}
		if got := out[dispersedStride+t2]; got != 7 {
			t.Fatalf("subband 1, t=%d: out = %d, want 7", t2, got)
		}
	}
}

func TestStepOneRespectsZapMask(t *testing.T) {
	obs := zeroDispersionSubbandObs(t)
	zap := dedisp.NewZapMask(4)
	zap.Zap(0)
	channelShifts := []float32{0, 0, 0, 0}

	dispersedStride := 4
	input := make([]int32, obs.NrChannels*dispersedStride)
	for c := 0; c < obs.NrChannels; c++ {
		for s := 0; s < dispersedStride; s++ {
			input[c*dispersedStride+s] = int32(c + 1)
		}
	}

	out := StepOne[int32, int32, int32](obs, zap, channelShifts, input, dispersedStride, dispersedStride)

	if got := out[0]; got != 2 {
		t.Fatalf("subband 0 with channel 0 zapped = %d, want 2", got)
	}
}
