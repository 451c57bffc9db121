package reference

import (
	dedisp "github.com/TRASAL/dedisp"
)

// StepOne computes the first stage of the subband (two-step) algorithm:
// channels within a subband are summed at the coarse DM grid, with each
// channel's shift taken relative to its subband's high-edge channel.
//
// input is indexed [beam][channel][paddedSample] with row length
// dispersedStride; output is indexed [beam][coarseDM][subband][paddedSample]
// with row length outputStride.
func StepOne[I, L, O Numeric](
	obs dedisp.Observation,
	zap dedisp.ZapMask,
	channelShifts []float32,
	input []I,
	dispersedStride int,
	outputStride int,
) []O {
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	perSubband := obs.NrChannelsPerSubband()
	out := make([]O, obs.NrBeams*obs.DMCoarse.Count*obs.NrSubbands*outputStride)

	for beam := 0; beam < obs.NrBeams; beam++ {
		for d := 0; d < obs.DMCoarse.Count; d++ {
			coarseDM := obs.DMCoarse.Value(d)
			for s := 0; s < obs.NrSubbands; s++ {
				highEdgeChannel := (s+1)*perSubband - 1
				for t := 0; t < nrSamples; t++ {
					var sum L
					for k := 0; k < perSubband; k++ {
						c := s*perSubband + k
						if zap.Zapped(c) {
							continue
						}
						shift := Shift(coarseDM, channelShifts[c]-channelShifts[highEdgeChannel])
						idx := beam*obs.NrChannels*dispersedStride + c*dispersedStride + (t + shift)
						sum += Convert[L](input[idx])
					}
					outIdx := beam*obs.DMCoarse.Count*obs.NrSubbands*outputStride +
						d*obs.NrSubbands*outputStride +
						s*outputStride + t
					out[outIdx] = Convert[O](sum)
				}
			}
		}
	}

	return out
}

// StepOneSubByte is StepOne specialised for 1/2/4-bit packed input.
func StepOneSubByte[L, O Numeric](
	obs dedisp.Observation,
	zap dedisp.ZapMask,
	channelShifts []float32,
	input []byte,
	bits int,
	signed bool,
	dispersedStrideBytes int,
	outputStride int,
) []O {
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	perSubband := obs.NrChannelsPerSubband()
	out := make([]O, obs.NrBeams*obs.DMCoarse.Count*obs.NrSubbands*outputStride)

	for beam := 0; beam < obs.NrBeams; beam++ {
		for d := 0; d < obs.DMCoarse.Count; d++ {
			coarseDM := obs.DMCoarse.Value(d)
			for s := 0; s < obs.NrSubbands; s++ {
				highEdgeChannel := (s+1)*perSubband - 1
				for t := 0; t < nrSamples; t++ {
					var sum L
					for k := 0; k < perSubband; k++ {
						c := s*perSubband + k
						if zap.Zapped(c) {
							continue
						}
						shift := Shift(coarseDM, channelShifts[c]-channelShifts[highEdgeChannel])
						rowOffset := (beam*obs.NrChannels + c) * dispersedStrideBytes
						raw := UnpackSample(input, t+shift, bits, rowOffset, signed)
						sum += Convert[L](raw)
					}
					outIdx := beam*obs.DMCoarse.Count*obs.NrSubbands*outputStride +
						d*obs.NrSubbands*outputStride +
						s*outputStride + t
					out[outIdx] = Convert[O](sum)
				}
			}
		}
	}

	return out
}
