package kernelgen

import (
	"fmt"
	"strconv"
)

// GenerateStepTwo emits the text of the subband step-two kernel. Argument
// layout: input, output, beam_mapping, shifts. Step two reads already
// coarse-dedispersed (subbanded) data, so there is no zapped-channel mask
// and no sub-byte input.
func GenerateStepTwo(p Params) (string, error) {
	if err := p.Config.RejectSplitBatches(); err != nil {
		return "", err
	}

	obs := p.Obs
	cfg := p.Config
	tp := p.Types

	firstDM := floatLiteral(obs.DMFine.First)
	dmStep := floatLiteral(obs.DMFine.Step)
	totalSamplesPerBlock := cfg.ThreadsD0 * cfg.ItemsD0
	totalDMsPerBlock := cfg.ThreadsD1 * cfg.ItemsD1
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	subbandedStride := obs.PadSamples(nrSamples, inputElemBytes(tp))
	outStride := obs.PadSamples(nrSamples, outputElemBytes)

	header := fmt.Sprintf(
		"__kernel void dedispersionStepTwo(__global const %s * restrict const input, __global %s * restrict const output, __global const unsigned int * restrict const beamMapping, __constant const float * restrict const shifts) {\n",
		tp.InputType, tp.OutputType)

	var b builder
	b.writeln(header)
	b.writeln("unsigned int dm = (get_group_id(1) * " + strconv.Itoa(totalDMsPerBlock) + ") + get_local_id(1);")
	b.writeln("unsigned int sample = (get_group_id(0) * " + strconv.Itoa(totalSamplesPerBlock) + ") + get_local_id(0);")
	b.writeln("unsigned int coarseDM = dm / " + strconv.Itoa(obs.DMFine.Count) + ";")
	b.writeln("unsigned int fineDM = dm % " + strconv.Itoa(obs.DMFine.Count) + ";")
	b.writeln("unsigned int sBeam = get_group_id(2);")
	b.writeln(accumDefs(p))

	out := "for ( unsigned int subband = 0; subband < " + strconv.Itoa(obs.NrSubbands) + "; subband++ ) {\n"
	out += itemPairs(cfg.ItemsD0, cfg.ItemsD1, func(num, dmNum int) string {
			dmOffset := dmNum * cfg.ThreadsD1
			shiftExpr := fmt.Sprintf(
				"convert_uint_rtz(shifts[subband] * (%s + ((dm + %d) * %s)))",
				firstDM, dmOffset, dmStep)
			conv := ""
			if tp.Intermediate != tp.InputType {
				conv = "convert_" + tp.Intermediate
			}
			idx := fmt.Sprintf(
				"(beamMapping[(sBeam * %d) + subband] * %d) + (coarseDM * %d) + (subband * %d) + (sample + %d + %s)",
				obs.NrSubbands, obs.DMCoarse.Count*obs.NrSubbands*subbandedStride, obs.NrSubbands*subbandedStride,
				subbandedStride, num*cfg.ThreadsD0, shiftExpr)
			var loadExpr string
			if conv == "" {
				loadExpr = "input[" + idx + "]"
			} else {
				loadExpr = conv + "(input[" + idx + "])"
			}
			return indexed(fmt.Sprintf("dedispersedSample<%%NUM%%>DM<%%DM_NUM%%> += %s;\n", loadExpr), num, num*cfg.ThreadsD0, dmNum, dmOffset)
	})
	out += "}\n"
	b.writeln(out)

	var stores string
	for i := 0; i < cfg.ItemsD0; i++ {
		for j := 0; j < cfg.ItemsD1; j++ {
			expr := storeCast(p, fmt.Sprintf("dedispersedSample%dDM%d", i, j))
			idx := fmt.Sprintf("(sBeam * %d) + ((dm + %d) * %d) + (sample + %d)",
				obs.DMCoarse.Count*obs.DMFine.Count*outStride, j*cfg.ThreadsD1, outStride, i*cfg.ThreadsD0)
			line := "output[" + idx + "] = " + expr + ";\n"
			cond := sampleGuard(p, i*cfg.ThreadsD0, strconv.Itoa(nrSamples))
			stores += guard(cond, line)
		}
	}
	b.writeln(stores)
	b.writeln("}")

	return b.String(), nil
}
