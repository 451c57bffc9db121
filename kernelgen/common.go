package kernelgen

import (
	"fmt"
	"strconv"

	dedisp "github.com/TRASAL/dedisp"
)

// Params bundles everything the generator needs to bake literals into a
// kernel body: the tuning point, the observation, the type plan,
// padding, and the shift table computed for the relevant reference
// frequency.
type Params struct {
	Config dedisp.TuningPointConfig
	Obs dedisp.Observation
	Types dedisp.TypePlan
	Padding int
	Shifts []float32
}

// accumDefs declares the items_d0*items_d1 accumulator registers, zeroed, one per (sample item, DM item) pair.
func accumDefs(p Params) string {
	var out string
	for i := 0; i < p.Config.ItemsD0; i++ {
		for j := 0; j < p.Config.ItemsD1; j++ {
			out += fmt.Sprintf("%s dedispersedSample%dDM%d = (%s)(0);\n", p.Types.Intermediate, i, j, p.Types.Intermediate)
		}
	}
	return out
}

// storeCast renders the store expression for one accumulator, casting from
// the intermediate type to the output type only if they differ.
func storeCast(p Params, expr string) string {
	if p.Types.Intermediate == p.Types.OutputType {
		return expr
	}
	return "convert_" + p.Types.OutputType + "(" + expr + ")"
}

// guard wraps body in a boundary-guard predicate when the tile does not
// evenly divide the work grid.
func guard(cond string, body string) string {
	if cond == "" {
		return body
	}
	return "if ( " + cond + " ) {\n" + body + "}\n"
}

// sampleGuard returns the guard condition for sample-tile overflow, or ""
// if the sample axis divides evenly and no guard is needed.
func sampleGuard(p Params, offset int, limit string) string {
	total := p.Config.ThreadsD0 * p.Config.ItemsD0
	if (p.Obs.NrSamplesPerBatch/p.Obs.Downsampling)%total == 0 {
		return ""
	}
	return "sample + " + strconv.Itoa(offset) + " < " + limit
}

// subByteDecls declares the scratch registers the sub-byte unpack sequence
// needs, when the input is packed at less than 8 bits per sample.
func subByteDecls(p Params) string {
	if !p.Types.SubByte() {
		return ""
	}
	return fmt.Sprintf("%s bitsBuffer;\nunsigned int byte = 0;\nuchar firstBit = 0;\nint interBuffer;\n", p.Types.InputType)
}

// subByteUnpack emits the bit-unpack sequence for one logical sample at
// byte/bit offset expr, producing a value in interBuffer. inputBits is 1, 2
// or 4; signed requests sign-extension of the unpacked value.
func subByteUnpack(p Params, byteIndexExpr string, sampleModExpr string) string {
	bits := p.Types.InputBits
	perByte := 8 / bits
	var out string
	out += "byte = (" + byteIndexExpr + ") / " + strconv.Itoa(perByte) + ";\n"
	out += "firstBit = 8 - " + strconv.Itoa(bits) + " - ((" + sampleModExpr + ") % " + strconv.Itoa(perByte) + ") * " + strconv.Itoa(bits) + ";\n"
	out += "bitsBuffer = input[byte];\n"
	out += fmt.Sprintf("interBuffer = (bitsBuffer >> firstBit) & %d;\n", (1<<bits)-1)
	if p.Types.Signed() {
		out += fmt.Sprintf("if ( (interBuffer & %d) != 0 ) { interBuffer -= %d; }\n", 1<<(bits-1), 1<<bits)
	}
	return out
}

// unrollChannels runs fn once per step of the unroll window [0, unroll).
func unrollChannels(unroll int, fn func(step int) string) string {
	var out string
	for step := 0; step < unroll; step++ {
		out += fn(step)
	}
	return out
}

// itemPairs runs fn once per (sample item, DM item) pair in row-major
// (sample-major) order, matching the original generator's nesting.
func itemPairs(itemsD0, itemsD1 int, fn func(num, dmNum int) string) string {
	var out string
	for i := 0; i < itemsD0; i++ {
		for j := 0; j < itemsD1; j++ {
			out += fn(i, j)
		}
	}
	return out
}
