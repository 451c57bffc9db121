package reference

import (
	"testing"

	dedisp "github.com/TRASAL/dedisp"
)

// zeroDispersionObs builds a single-beam, single-DM (DM=0) observation so
// every channel shift collapses to zero, letting the expected output reduce
// to a plain per-sample sum over unzapped channels.
func zeroDispersionObs(t *testing.T, nrChannels int) dedisp.Observation {
	t.Helper()
	obs, err := dedisp.NewObservation(
		nrChannels, 1400, -10, 0,
		dedisp.DMRange{},
		dedisp.DMRange{Count: 1, First: 0, Step: 0},
		1, 1, 4, 1, 0,
	)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	return obs
}

func TestDirectSumsUnzappedChannelsAtZeroDM(t *testing.T) {
	obs := zeroDispersionObs(t, 4)
	zap := dedisp.NewZapMask(4)
	beamMap := dedisp.IdentityBeamMapping(1, 4, 1)
	shifts := []float32{0, 0, 0, 0}

	dispersedStride := 4
	input := make([]int32, obs.NrChannels*dispersedStride)
	for c := 0; c < obs.NrChannels; c++ {
		for s := 0; s < dispersedStride; s++ {
			input[c*dispersedStride+s] = int32(c + 1)
		}
	}

	out := Direct[int32, int32, int32](obs, zap, beamMap, shifts, input, dispersedStride, dispersedStride)

	want := int32(1 + 2 + 3 + 4)
	for t2 := 0; t2 < 4; t2++ {
		if got := out[t2]; got != want {
			t.Fatalf("out[%d] = %d, want %d", t2, got, want)
		}
	}
}

func TestDirectRespectsZapMask(t *testing.T) {
	obs := zeroDispersionObs(t, 4)
	zap := dedisp.NewZapMask(4)
	zap.Zap(1)
	beamMap := dedisp.IdentityBeamMapping(1, 4, 1)
	shifts := []float32{0, 0, 0, 0}

	dispersedStride := 4
	input := make([]int32, obs.NrChannels*dispersedStride)
	for c := 0; c < obs.NrChannels; c++ {
		for s := 0; s < dispersedStride; s++ {
			input[c*dispersedStride+s] = int32(c + 1)
		}
	}

	out := Direct[int32, int32, int32](obs, zap, beamMap, shifts, input, dispersedStride, dispersedStride)

	want := int32(1 + 3 + 4) // channel 1 (value 2) excluded
	if got := out[0]; got != want {
		t.Fatalf("out[0] = %d, want %d with channel 1 zapped", got, want)
	}
}

func TestDirectSubByteMatchesUnpackedSum(t *testing.T) {
	obs := zeroDispersionObs(t, 2)
	zap := dedisp.NewZapMask(2)
	beamMap := dedisp.IdentityBeamMapping(1, 2, 1)
	shifts := []float32{0, 0}

	const bits = 4
	rowBytes := PackSamples([]int32{1, 1, 1, 1}, bits)
	row1Bytes := PackSamples([]int32{2, 2, 2, 2}, bits)
	input := append(append([]byte{}, rowBytes...), row1Bytes...)
	dispersedStrideBytes := len(rowBytes)

	out := DirectSubByte[int32, int32](obs, zap, beamMap, shifts, input, bits, false, dispersedStrideBytes, dispersedStrideBytes*8/bits)

	want := int32(1 + 2)
	for t2 := 0; t2 < 4; t2++ {
		if got := out[t2]; got != want {
			t.Fatalf("out[%d] = %d, want %d", t2, got, want)
		}
	}
}

func TestDirectSubByteSignExtends(t *testing.T) {
	obs := zeroDispersionObs(t, 1)
	zap := dedisp.NewZapMask(1)
	beamMap := dedisp.IdentityBeamMapping(1, 1, 1)
	shifts := []float32{0}

	const bits = 4
	// -1 in 4-bit two's complement is 0b1111.
	rowBytes := PackSamples([]int32{0b1111, 0b1111, 0b1111, 0b1111}, bits)

	out := DirectSubByte[int32, int32](obs, zap, beamMap, shifts, rowBytes, bits, true, len(rowBytes), 4)

	if got := out[0]; got != -1 {
		t.Fatalf("out[0] = %d, want -1 under signed sub-byte unpacking", got)
	}
}
