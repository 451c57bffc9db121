package reference

import (
	dedisp "github.com/TRASAL/dedisp"
)

// Direct computes the single-step dedispersion for ≥8-bit input:
// for every (synthesized beam, DM, sample) cell, sum the zap-respecting,
// shift-aligned contributions of every channel, left to right in channel
// order.
//
// input is indexed [beam][channel][paddedSample] with row length
// dispersedStride; output is indexed [synBeam][dm][paddedSample] with row
// length outputStride.
func Direct[I, L, O Numeric](
	obs dedisp.Observation,
	zap dedisp.ZapMask,
	beamMap dedisp.BeamMapping,
	shifts []float32,
	input []I,
	dispersedStride int,
	outputStride int,
) []O {
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	out := make([]O, obs.NrSynthesizedBeams*obs.DMFine.Count*outputStride)

	for sb := 0; sb < obs.NrSynthesizedBeams; sb++ {
		for d := 0; d < obs.DMFine.Count; d++ {
			dm := obs.DMFine.Value(d)
			for t := 0; t < nrSamples; t++ {
				var sum L
				for c := 0; c < obs.NrChannels; c++ {
					if zap.Zapped(c) {
						continue
					}
					shift := Shift(dm, shifts[c])
					beam := beamMap.Beam(sb, c)
					idx := beam*obs.NrChannels*dispersedStride + c*dispersedStride + (t + shift)
					sum += Convert[L](input[idx])
				}
				out[sb*obs.DMFine.Count*outputStride+d*outputStride+t] = Convert[O](sum)
			}
		}
	}

	return out
}

// DirectSubByte is Direct specialised for 1/2/4-bit packed input. dispersedStrideBytes is the padded row
// stride in bytes.
func DirectSubByte[L, O Numeric](
	obs dedisp.Observation,
	zap dedisp.ZapMask,
	beamMap dedisp.BeamMapping,
	shifts []float32,
	input []byte,
	bits int,
	signed bool,
	dispersedStrideBytes int,
	outputStride int,
) []O {
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	out := make([]O, obs.NrSynthesizedBeams*obs.DMFine.Count*outputStride)

	for sb := 0; sb < obs.NrSynthesizedBeams; sb++ {
		for d := 0; d < obs.DMFine.Count; d++ {
			dm := obs.DMFine.Value(d)
			for t := 0; t < nrSamples; t++ {
				var sum L
				for c := 0; c < obs.NrChannels; c++ {
					if zap.Zapped(c) {
						continue
					}
					shift := Shift(dm, shifts[c])
					beam := beamMap.Beam(sb, c)
					rowOffset := (beam*obs.NrChannels + c) * dispersedStrideBytes
					raw := UnpackSample(input, t+shift, bits, rowOffset, signed)
					sum += Convert[L](raw)
				}
				out[sb*obs.DMFine.Count*outputStride+d*outputStride+t] = Convert[O](sum)
			}
		}
	}

	return out
}
