package dedisp

import (
	"math"
)

// DMRange describes a dispersion-measure grid as the triple (count, first,
// step): values are First + i*Step for i in [0, Count).
type DMRange struct {
	Count int
	First float64
	Step  float64
}

// Value returns the i'th DM value of the grid.
func (r DMRange) Value(i int) float64 {
	return r.First + float64(i)*r.Step
}

// Observation holds the frequency plan, subband plan, DM grids and batching
// parameters of a single dedispersion run. It is immutable after NewObservation
// returns; every derived quantity is a method, never a stored, mutable field.
type Observation struct {
	NrChannels        int
	MinFreq           float64
	ChannelBandwidth  float64

	NrSubbands int

	DMCoarse DMRange
	DMFine   DMRange

	NrBeams              int
	NrSynthesizedBeams   int
	NrSamplesPerBatch    int
	Downsampling         int

	// PaddingBytes is the byte count every per-channel / per-DM row stride
	// is rounded up to a multiple of.
	PaddingBytes int
}

// NewObservation validates and constructs an Observation. It mirrors the
// AstroData::Observation setters from the original implementation: the
// subband count must evenly divide the channel count, and both the channel
// count and samples-per-batch must be positive.
func NewObservation(nrChannels int, minFreq, channelBandwidth float64, nrSubbands int, dmCoarse, dmFine DMRange, nrBeams, nrSynthesizedBeams, nrSamplesPerBatch, downsampling, paddingBytes int) (Observation, error) {
	if nrChannels <= 0 {
		return Observation{}, ErrZeroChannels
	}
	if nrSamplesPerBatch <= 0 {
		return Observation{}, ErrZeroSamplesPerBatch
	}
	if downsampling < 1 {
		return Observation{}, ErrZeroDownsampling
	}
	if nrSubbands > 0 && nrChannels%nrSubbands != 0 {
		return Observation{}, ErrSubbandsDontDivideChannels
	}

	obs := Observation{
		NrChannels:         nrChannels,
		MinFreq:            minFreq,
		ChannelBandwidth:   channelBandwidth,
		NrSubbands:         nrSubbands,
		DMCoarse:           dmCoarse,
		DMFine:             dmFine,
		NrBeams:            nrBeams,
		NrSynthesizedBeams: nrSynthesizedBeams,
		NrSamplesPerBatch:  nrSamplesPerBatch,
		Downsampling:       downsampling,
		PaddingBytes:       paddingBytes,
	}

	return obs, nil
}

// MaxFreq is the centre frequency of the top channel.
func (o Observation) MaxFreq() float64 {
	return o.MinFreq + o.ChannelBandwidth*float64(o.NrChannels-1)
}

// ChannelFreq returns the centre frequency of channel c.
func (o Observation) ChannelFreq(c int) float64 {
	return o.MinFreq + o.ChannelBandwidth*float64(c)
}

// NrChannelsPerSubband is NrChannels / NrSubbands; callers must only use it
// when NrSubbands > 0 (direct mode has no subbands).
func (o Observation) NrChannelsPerSubband() int {
	return o.NrChannels / o.NrSubbands
}

// SubbandMinFreq is the low edge of subband s (the centre frequency of its
// first channel).
func (o Observation) SubbandMinFreq(s int) float64 {
	return o.ChannelFreq(s * o.NrChannelsPerSubband())
}

// SubbandMaxFreq is the high edge of subband s (the centre frequency of its
// last channel).
func (o Observation) SubbandMaxFreq(s int) float64 {
	return o.ChannelFreq((s+1)*o.NrChannelsPerSubband() - 1)
}

// SubbandBandwidth is the channel bandwidth scaled by the number of channels
// folded into each subband.
func (o Observation) SubbandBandwidth() float64 {
	return o.ChannelBandwidth * float64(o.NrChannelsPerSubband())
}

// PadSamples rounds up n (a sample count, of element size elemBytes) so that
// its byte length is a multiple of PaddingBytes. PaddingBytes == 0 disables
// padding.
func (o Observation) PadSamples(n, elemBytes int) int {
	return Pad(n, o.PaddingBytes, elemBytes)
}

// Pad rounds n up so that n*elemBytes is a multiple of paddingBytes.
func Pad(n, paddingBytes, elemBytes int) int {
	if paddingBytes <= 0 || elemBytes <= 0 {
		return n
	}
	elemsPerPad := paddingBytes / elemBytes
	if elemsPerPad <= 1 {
		return n
	}
	if n%elemsPerPad == 0 {
		return n
	}
	return ((n / elemsPerPad) + 1) * elemsPerPad
}

// maxShiftSamples is the largest integer channel/subband delay present in the
// shift table for the given DM grid, used to size the dispersed batch.
func maxShiftSamples(shifts []float32, dm DMRange) int {
	if dm.Count == 0 {
		return 0
	}
	lastDM := dm.Value(dm.Count - 1)
	max := 0.0
	for _, s := range shifts {
		v := float64(s) * lastDM
		if v > max {
			max = v
		}
	}
	return int(math.Trunc(max))
}

// NrSamplesPerDispersedBatch is the number of input samples a batch of
// NrSamplesPerBatch output samples requires, accounting for the largest
// dispersion shift in the relevant DM grid. coarse selects the coarse grid
// (subband step-one); otherwise the fine grid is used.
func (o Observation) NrSamplesPerDispersedBatch(shifts []float32, coarse bool) int {
	dm := o.DMFine
	if coarse {
		dm = o.DMCoarse
	}
	return o.NrSamplesPerBatch + maxShiftSamples(shifts, dm)
}

// DispersedBufferBytes is the byte size of the direct-mode dispersed input
// buffer for elements of elemBytes bytes: beams * channels * padded(samples).
func (o Observation) DispersedBufferBytes(shifts []float32, elemBytes int) int {
	padded := o.PadSamples(o.NrSamplesPerDispersedBatch(shifts, false), elemBytes)
	return o.NrBeams * o.NrChannels * padded * elemBytes
}

// DedispersedBufferBytes is the byte size of the direct-mode output buffer:
// synthesized beams * fine DMs * padded(samples per batch / downsampling).
// The step-two output has DMCoarse.Count times as many rows.
func (o Observation) DedispersedBufferBytes(elemBytes int) int {
	padded := o.PadSamples(o.NrSamplesPerBatch/o.Downsampling, elemBytes)
	return o.NrSynthesizedBeams * o.DMFine.Count * padded * elemBytes
}

// SubbandedBufferBytes is the byte size of the step-one output buffer:
// beams * coarseDMs * subbands * padded(samples per batch / downsampling).
func (o Observation) SubbandedBufferBytes(elemBytes int) int {
	padded := o.PadSamples(o.NrSamplesPerBatch/o.Downsampling, elemBytes)
	return o.NrBeams * o.DMCoarse.Count * o.NrSubbands * padded * elemBytes
}
