package reference

import (
	dedisp "github.com/TRASAL/dedisp"
)

// StepTwo computes the second stage of the subband (two-step) algorithm:
// subbands are summed at the fine DM grid against the already
// coarse-dedispersed (subbanded) data.
//
// subbanded is indexed [beam][coarseDM][subband][paddedSample] with row
// length subbandedStride; output is indexed
// [synBeam][coarseDM*fineDMCount+fineDM][paddedSample] with row length
// outputStride.
func StepTwo[I, L, O Numeric](
	obs dedisp.Observation,
	beamMap dedisp.BeamMapping,
	subbandShifts []float32,
	subbanded []I,
	subbandedStride int,
	outputStride int,
) []O {
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	out := make([]O, obs.NrSynthesizedBeams*obs.DMCoarse.Count*obs.DMFine.Count*outputStride)

	for sb := 0; sb < obs.NrSynthesizedBeams; sb++ {
		for cd := 0; cd < obs.DMCoarse.Count; cd++ {
			for fd := 0; fd < obs.DMFine.Count; fd++ {
				fineDM := obs.DMFine.Value(fd)
				for t := 0; t < nrSamples; t++ {
					var sum L
					for s := 0; s < obs.NrSubbands; s++ {
						shift := Shift(fineDM, subbandShifts[s])
						beam := beamMap.Beam(sb, s)
						idx := beam*obs.DMCoarse.Count*obs.NrSubbands*subbandedStride +
							cd*obs.NrSubbands*subbandedStride +
							s*subbandedStride + (t + shift)
						sum += Convert[L](subbanded[idx])
					}
					outIdx := sb*obs.DMCoarse.Count*obs.DMFine.Count*outputStride +
						(cd*obs.DMFine.Count+fd)*outputStride + t
					out[outIdx] = Convert[O](sum)
				}
			}
		}
	}

	return out
}
