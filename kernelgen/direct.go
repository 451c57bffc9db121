package kernelgen

import (
	"fmt"
	"strconv"

	dedisp "github.com/TRASAL/dedisp"
)

// GenerateDirect emits the text of the single-step dedispersion kernel,
// entry point "dedispersion". Argument layout: input, output, beam_mapping,
// zapped_channels, shifts.
func GenerateDirect(p Params) (string, error) {
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

	header := fmt.Sprintf(
		"__kernel void dedispersion(__global const %s * restrict const input, __global %s * restrict const output, __global const unsigned int * restrict const beamMapping, __constant const unsigned int * restrict const zappedChannels, __constant const float * restrict const shifts) {\n",
		tp.InputType, tp.OutputType)

	var b builder
	b.writeln(header)
	b.writeln("unsigned int dm = (get_group_id(1) * " + strconv.Itoa(totalDMsPerBlock) + ") + get_local_id(1);")
	b.writeln("unsigned int sample = (get_group_id(0) * " + strconv.Itoa(totalSamplesPerBlock) + ") + get_local_id(0);")
	b.writeln("unsigned int sBeam = get_group_id(2);")
	b.writeln(accumDefs(p))

	if cfg.LocalMem {
		b.writeln(directLocalMemBody(p, firstDM, dmStep, totalSamplesPerBlock, totalDMsPerBlock, nrSamples))
	} else {
		b.writeln(directGlobalMemBody(p, firstDM, dmStep, nrSamples))
	}

	b.writeln(directStores(p, nrSamples))
	b.writeln("}")

	return b.String(), nil
}

// directGlobalMemBody implements global-memory mode: per channel, compute
// the per-DM shift from the shifts buffer and the baked DM-grid literals,
// skip if zapped, accumulate.
func directGlobalMemBody(p Params, firstDM, dmStep string, nrSamples int) string {
	cfg := p.Config
	var out string
	out += "for ( unsigned int channel = 0; channel < " + strconv.Itoa(p.Obs.NrChannels) + "; channel += " + strconv.Itoa(cfg.Unroll) + " ) {\n"
	out += unrollChannels(cfg.Unroll, func(step int) string {
			var chOut string
			chOut += unrolled("if ( zappedChannels[channel + <%UNROLL%>] == 0 ) {\n", step)
			chOut += itemPairs(cfg.ItemsD0, cfg.ItemsD1, func(num, dmNum int) string {
					dmOffset := dmNum * cfg.ThreadsD1
					shiftExpr := unrolled(fmt.Sprintf(
							"convert_uint_rtz(shifts[channel + <%%UNROLL%%>] * (%s + ((dm + %d) * %s)))",
							firstDM, dmOffset, dmStep), step)
					var sampleExpr string
					if p.Types.SubByte() {
						sampleExpr = directSubByteLoad(p, step, num, shiftExpr)
					} else {
						sampleExpr = directWideLoad(p, step, num, shiftExpr)
					}
					return indexed(fmt.Sprintf(
							"dedispersedSample<%%NUM%%>DM<%%DM_NUM%%> += %s;\n", sampleExpr),
						num, num*cfg.ThreadsD0, dmNum, dmOffset)
			})
			chOut += "}\n"
			return chOut
	})
	out += "}\n"
	return out
}

func directWideLoad(p Params, step, sampleItem int, shiftExpr string) string {
	conv := ""
	if p.Types.Intermediate != p.Types.InputType {
		conv = "convert_" + p.Types.Intermediate
	}
	idx := unrolled(fmt.Sprintf(
			"(beamMapping[(sBeam * %d) + (channel + <%%UNROLL%%>)] * %d) + ((channel + <%%UNROLL%%>) * %d) + (sample + %d + %s)",
			p.Obs.NrChannels, p.Obs.NrChannels*p.dispersedStride(), p.dispersedStride(), sampleItem*p.Config.ThreadsD0, shiftExpr), step)
	if conv == "" {
		return "input[" + idx + "]"
	}
	return conv + "(input[" + idx + "])"
}

func directSubByteLoad(p Params, step, sampleItem int, shiftExpr string) string {
	byteIdx := fmt.Sprintf("(sample + %d + %s)", sampleItem*p.Config.ThreadsD0, shiftExpr)
	sampleModExpr := byteIdx
	return subByteUnpack(p, byteIdx, sampleModExpr) + "interBuffer"
}

// dispersedStride is the padded row length (in elements) of the dispersed
// input buffer, baked into index arithmetic as a literal.
func (p Params) dispersedStride() int {
	return p.Obs.PadSamples(p.Obs.NrSamplesPerDispersedBatch(p.Shifts, false), inputElemBytes(p.Types))
}

func inputElemBytes(tp dedisp.TypePlan) int {
	if tp.SubByte() {
		return 1
	}
	return 4
}

// outputElemBytes is the output element size in bytes; output buffers are
// never sub-byte packed.
const outputElemBytes = 4

// directLocalMemBody implements local-memory (tile-cache) mode: per
// channel, a block-cooperative load of block_samples+diffShift samples
// into an on-chip buffer, a barrier, then per-DM accumulation from the
// buffer, with a closing barrier when unroll > 1.
func directLocalMemBody(p Params, firstDM, dmStep string, totalSamplesPerBlock, totalDMsPerBlock, nrSamples int) string {
	cfg := p.Config
	maxDM := totalDMsPerBlock - 1
	bufSize := totalSamplesPerBlock + maxShiftAtFirstChannel(p, totalDMsPerBlock)

	var out string
	out += fmt.Sprintf("__local %s buffer[%d];\n", p.Types.Intermediate, bufSize)
	out += subByteDecls(p)
	out += "unsigned int inShMem = 0;\n"
	out += "unsigned int inGlMem = 0;\n"
	out += "for ( unsigned int channel = 0; channel < " + strconv.Itoa(p.Obs.NrChannels) + "; channel += " + strconv.Itoa(cfg.Unroll) + " ) {\n"
	out += "unsigned int minShift = 0;\n"
	out += "unsigned int diffShift = 0;\n"

	out += unrollChannels(cfg.Unroll, func(step int) string {
			var chOut string
			chOut += unrolled(fmt.Sprintf(
					"if ( zappedChannels[channel + <%%UNROLL%%>] == 0 ) {\n"+
					"minShift = convert_uint_rtz(shifts[channel + <%%UNROLL%%>] * (%s + ((get_group_id(1) * %d) * %s)));\n"+
					"diffShift = convert_uint_rtz(shifts[channel + <%%UNROLL%%>] * (%s + (((get_group_id(1) * %d) + %d) * %s))) - minShift;\n",
					firstDM, totalDMsPerBlock, dmStep, firstDM, totalDMsPerBlock, maxDM, dmStep), step)

			chOut += "inShMem = (get_local_id(1) * " + strconv.Itoa(cfg.ThreadsD0) + ") + get_local_id(0);\n"
			chOut += "inGlMem = (get_group_id(0) * " + strconv.Itoa(totalSamplesPerBlock) + ") + inShMem + minShift;\n"
			chOut += unrolled(fmt.Sprintf(
					"while ( (inShMem < (%d + diffShift)) && (inGlMem < %d) ) {\n", totalSamplesPerBlock, p.Obs.NrSamplesPerDispersedBatch(p.Shifts, false)), step)
			if p.Types.SubByte() {
				chOut += subByteUnpack(p, "inGlMem", "inGlMem")
				chOut += unrolled("buffer[inShMem] = interBuffer;\n", step)
			} else {
				chOut += unrolled(fmt.Sprintf("buffer[inShMem] = input[(beamMapping[(sBeam * %d) + (channel + <%%UNROLL%%>)] * %d) + ((channel + <%%UNROLL%%>) * %d) + inGlMem];\n",
						p.Obs.NrChannels, p.Obs.NrChannels*p.dispersedStride(), p.dispersedStride()), step)
			}
			chOut += "inShMem += " + strconv.Itoa(cfg.ThreadsD0*cfg.ThreadsD1) + ";\n"
			chOut += "inGlMem += " + strconv.Itoa(cfg.ThreadsD0*cfg.ThreadsD1) + ";\n"
			chOut += "}\n"
			chOut += "barrier(CLK_LOCAL_MEM_FENCE);\n"

			chOut += itemPairs(cfg.ItemsD0, cfg.ItemsD1, func(num, dmNum int) string {
					dmOffset := dmNum * cfg.ThreadsD1
					shiftExpr := unrolled(fmt.Sprintf(
							"convert_uint_rtz(shifts[channel + <%%UNROLL%%>] * (%s + ((dm + %d) * %s))) - minShift",
							firstDM, dmOffset, dmStep), step)
					expr := fmt.Sprintf("buffer[(get_local_id(1) * %d) + get_local_id(0) + %d + (%s)]",
						cfg.ThreadsD0, num*cfg.ThreadsD0, shiftExpr)
					return indexed("dedispersedSample<%NUM%>DM<%DM_NUM%> += "+expr+";\n", num, num*cfg.ThreadsD0, dmNum, dmOffset)
			})
			chOut += "}\n"
			if cfg.Unroll > 1 {
				chOut += "barrier(CLK_LOCAL_MEM_FENCE);\n"
			}
			return chOut
	})

	out += "}\n"
	return out
}

func maxShiftAtFirstChannel(p Params, totalDMsPerBlock int) int {
	if len(p.Shifts) == 0 {
		return 0
	}
	dm := p.Obs.DMFine.First + float64(totalDMsPerBlock)*p.Obs.DMFine.Step
	return int(float64(p.Shifts[0]) * dm)
}

// directStores emits the output-write sequence for every accumulator,
// guarded against sample/DM tile overflow when the grid doesn't divide
// evenly.
func directStores(p Params, nrSamples int) string {
	cfg := p.Config
	outStride := p.Obs.PadSamples(nrSamples, outputElemBytes)
	var out string
	for i := 0; i < cfg.ItemsD0; i++ {
		for j := 0; j < cfg.ItemsD1; j++ {
			expr := storeCast(p, fmt.Sprintf("dedispersedSample%dDM%d", i, j))
			idx := fmt.Sprintf("(sBeam * %d) + ((dm + %d) * %d) + (sample + %d)",
				p.Obs.DMFine.Count*outStride, j*cfg.ThreadsD1, outStride, i*cfg.ThreadsD0)
			line := "output[" + idx + "] = " + expr + ";\n"
			cond := sampleGuard(p, i*cfg.ThreadsD0, strconv.Itoa(nrSamples))
			out += guard(cond, line)
		}
	}
	return out
}
