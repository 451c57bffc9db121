package kernelgen

import (
	"fmt"
	"strconv"
)

// GenerateStepOne emits the text of the subband step-one kernel. Argument
// layout: input, output, zapped_channels, shifts. Work-grid dimension 2
// indexes beam*nrSubbands+subband.
func GenerateStepOne(p Params) (string, error) {
	if err := p.Config.RejectSplitBatches(); err != nil {
		return "", err
	}

	obs := p.Obs
	cfg := p.Config
	tp := p.Types
	perSubband := obs.NrChannelsPerSubband()

	firstDM := floatLiteral(obs.DMCoarse.First)
	dmStep := floatLiteral(obs.DMCoarse.Step)
	totalSamplesPerBlock := cfg.ThreadsD0 * cfg.ItemsD0
	totalDMsPerBlock := cfg.ThreadsD1 * cfg.ItemsD1
	nrSamples := obs.NrSamplesPerBatch / obs.Downsampling
	dispStride := p.dispersedStride()
	outStride := obs.PadSamples(nrSamples, outputElemBytes)

	header := fmt.Sprintf(
		"__kernel void dedispersionStepOne(__global const %s * restrict const input, __global %s * restrict const output, __constant const unsigned int * restrict const zappedChannels, __constant const float * restrict const shifts) {\n",
		tp.InputType, tp.OutputType)

	var b builder
	b.writeln(header)
	b.writeln("unsigned int dm = (get_group_id(1) * " + strconv.Itoa(totalDMsPerBlock) + ") + get_local_id(1);")
	b.writeln("unsigned int sample = (get_group_id(0) * " + strconv.Itoa(totalSamplesPerBlock) + ") + get_local_id(0);")
	b.writeln("unsigned int beamSubband = get_group_id(2);")
	b.writeln("unsigned int beam = beamSubband / " + strconv.Itoa(obs.NrSubbands) + ";")
	b.writeln("unsigned int subband = beamSubband % " + strconv.Itoa(obs.NrSubbands) + ";")
	b.writeln("unsigned int highEdgeChannel = ((subband + 1) * " + strconv.Itoa(perSubband) + ") - 1;")
	b.writeln(accumDefs(p))

	out := "for ( unsigned int k = 0; k < " + strconv.Itoa(perSubband) + "; k += " + strconv.Itoa(cfg.Unroll) + " ) {\n"
	out += "unsigned int channel = (subband * " + strconv.Itoa(perSubband) + ") + k;\n"
	out += unrollChannels(cfg.Unroll, func(step int) string {
			var chOut string
			chOut += unrolled("if ( zappedChannels[channel + <%UNROLL%>] == 0 ) {\n", step)
			chOut += itemPairs(cfg.ItemsD0, cfg.ItemsD1, func(num, dmNum int) string {
					dmOffset := dmNum * cfg.ThreadsD1
					shiftExpr := unrolled(fmt.Sprintf(
							"convert_uint_rtz((shifts[channel + <%%UNROLL%%>] - shifts[highEdgeChannel]) * (%s + ((dm + %d) * %s)))",
							firstDM, dmOffset, dmStep), step)
					var loadExpr string
					if tp.SubByte() {
						byteIdx := fmt.Sprintf("(sample + %d + %s)", num*cfg.ThreadsD0, shiftExpr)
						loadExpr = subByteUnpack(p, byteIdx, byteIdx) + "interBuffer"
					} else {
						conv := ""
						if tp.Intermediate != tp.InputType {
							conv = "convert_" + tp.Intermediate
						}
						idx := fmt.Sprintf("(beam * %d) + (channel * %d) + (sample + %d + %s)",
							obs.NrChannels*dispStride, dispStride, num*cfg.ThreadsD0, shiftExpr)
						if conv == "" {
							loadExpr = "input[" + idx + "]"
						} else {
							loadExpr = conv + "(input[" + idx + "])"
						}
					}
					return indexed(fmt.Sprintf("dedispersedSample<%%NUM%%>DM<%%DM_NUM%%> += %s;\n", loadExpr), num, num*cfg.ThreadsD0, dmNum, dmOffset)
			})
			chOut += "}\n"
			return chOut
	})
	out += "}\n"
	b.writeln(out)

	var stores string
	for i := 0; i < cfg.ItemsD0; i++ {
		for j := 0; j < cfg.ItemsD1; j++ {
			expr := storeCast(p, fmt.Sprintf("dedispersedSample%dDM%d", i, j))
			idx := fmt.Sprintf("(beam * %d) + ((dm + %d) * %d) + (subband * %d) + (sample + %d)",
				obs.DMCoarse.Count*obs.NrSubbands*outStride, j*cfg.ThreadsD1, obs.NrSubbands*outStride, outStride, i*cfg.ThreadsD0)
			line := "output[" + idx + "] = " + expr + ";\n"
			cond := sampleGuard(p, i*cfg.ThreadsD0, strconv.Itoa(nrSamples))
			stores += guard(cond, line)
		}
	}
	b.writeln(stores)
	b.writeln("}")

	return b.String(), nil
}
