package reference

import "testing"

func TestPackUnpackRoundTripUnsigned(t *testing.T) {
	for _, bits := range []int{1, 2, 4} {
		max := int32(1<<bits) - 1
		values := []int32{0, max, max / 2, 1}
		row := PackSamples(values, bits)
		for i, want := range values {
			got := UnpackSample(row, i, bits, 0, false)
			if got != want {
				t.Fatalf("bits=%d idx=%d: UnpackSample = %d, want %d", bits, i, got, want)
			}
		}
	}
}

func TestUnpackSampleSignExtension(t *testing.T) {
	// 4-bit two's complement: 0b1000 = -8, 0b0111 = 7.
	row := PackSamples([]int32{0b1000, 0b0111}, 4)
	if got := UnpackSample(row, 0, 4, 0, true); got != -8 {
		t.Fatalf("UnpackSample(signed, 0b1000) = %d, want -8", got)
	}
	if got := UnpackSample(row, 1, 4, 0, true); got != 7 {
		t.Fatalf("UnpackSample(signed, 0b0111) = %d, want 7", got)
	}
}

func TestUnpackSampleByteOffsetSelectsRow(t *testing.T) {
	rowA := PackSamples([]int32{1, 1}, 4)
	rowB := PackSamples([]int32{2, 2}, 4)
	combined := append(append([]byte{}, rowA...), rowB...)

	if got := UnpackSample(combined, 0, 4, 0, false); got != 1 {
		t.Fatalf("row A sample 0 = %d, want 1", got)
	}
	if got := UnpackSample(combined, 0, 4, len(rowA), false); got != 2 {
		t.Fatalf("row B sample 0 (via byteOffset) = %d, want 2", got)
	}
}
