// Package cpu is an in-process accelerator Backend that executes the scalar
// reference algorithms directly against host buffers instead of
// compiling and launching the generated kernel text, standing in for the
// real OpenCL/CUDA runtime the design notes put out of scope.
// It is the test suite's correctness oracle; the autotuner times candidates
// on it but does not compare their outputs.
package cpu

import (
	"context"
	"encoding/binary"
	"errors"
	"math"

	dedisp "github.com/TRASAL/dedisp"
	"github.com/TRASAL/dedisp/reference"
)

// Backend holds the observation and the buffer strides a session needs and
// dispatches Enqueue calls to the matching reference function. The shift
// table, zap mask and beam mapping are not held here; they arrive as
// Enqueue buffer arguments.
type Backend struct {
	Obs dedisp.Observation
	DispersedStride int
	OutputStride int
	SubbandedStride int
}

// New returns a CPU reference backend scoped to one observation.
func New(obs dedisp.Observation, dispersedStride, outputStride, subbandedStride int) *Backend {
	return &Backend{Obs: obs, DispersedStride: dispersedStride, OutputStride: outputStride, SubbandedStride: subbandedStride}
}

func (b *Backend) Name() string { return "cpu-reference" }

type program struct {
	entry dedisp.Entry
}

// Compile never fails for the reference backend: kernel source text is
// accepted but not parsed, since execution dispatches on the entry point
// directly to the matching reference algorithm.
func (b *Backend) Compile(ctx context.Context, entry dedisp.Entry, source string) (dedisp.Program, error) {
	return program{entry: entry}, nil
}

type buffer struct {
	data []byte
	role dedisp.MemoryRole
}

func (b *Backend) Alloc(ctx context.Context, role dedisp.MemoryRole, size int) (dedisp.Buffer, error) {
	return &buffer{data: make([]byte, size), role: role}, nil
}

type doneEvent struct{}

func (doneEvent) Wait(ctx context.Context) error { return nil }

func (b *Backend) Write(ctx context.Context, dst dedisp.Buffer, src []byte, blocking bool) (dedisp.Event, error) {
	buf, ok := dst.(*buffer)
	if !ok {
		return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: not a cpu buffer")}
	}
	copy(buf.data, src)
	return doneEvent{}, nil
}

func (b *Backend) Read(ctx context.Context, dst []byte, src dedisp.Buffer, blocking bool) (dedisp.Event, error) {
	buf, ok := src.(*buffer)
	if !ok {
		return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: not a cpu buffer")}
	}
	copy(dst, buf.data)
	return doneEvent{}, nil
}

func (b *Backend) Free(buf dedisp.Buffer) error { return nil }

// Enqueue dispatches on the program's entry point, decoding the positional
// argument buffers in the order specifies for that entry, runs the
// matching float32-instantiated reference algorithm, and writes the result
// back into the output buffer.
func (b *Backend) Enqueue(ctx context.Context, prog dedisp.Program, global, local dedisp.Range3D, args []dedisp.Buffer) (dedisp.Event, error) {
	p, ok := prog.(program)
	if !ok {
		return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: not a cpu program")}
	}

	switch p.entry {
	case dedisp.EntryDirect:
		if len(args) != 5 {
			return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: dedispersion expects 5 arguments")}
		}
		input := asFloat32(bufData(args[0]))
		output := bufData(args[1])
		beamMapping := asBeamMapping(bufData(args[2]), b.Obs.NrChannels, b.Obs.NrBeams)
		zap := asZapMask(bufData(args[3]))
		shifts := asFloat32(bufData(args[4]))

		out := reference.Direct[float32, float32, float32](b.Obs, zap, beamMapping, shifts, input, b.DispersedStride, b.OutputStride)
		putFloat32(output, out)

	case dedisp.EntryStepOne:
		if len(args) != 4 {
			return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: dedispersionStepOne expects 4 arguments")}
		}
		input := asFloat32(bufData(args[0]))
		output := bufData(args[1])
		zap := asZapMask(bufData(args[2]))
		shifts := asFloat32(bufData(args[3]))

		out := reference.StepOne[float32, float32, float32](b.Obs, zap, shifts, input, b.DispersedStride, b.OutputStride)
		putFloat32(output, out)

	case dedisp.EntryStepTwo:
		if len(args) != 4 {
			return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: dedispersionStepTwo expects 4 arguments")}
		}
		input := asFloat32(bufData(args[0]))
		output := bufData(args[1])
		beamMapping := asBeamMapping(bufData(args[2]), b.Obs.NrSubbands, b.Obs.NrBeams)
		shifts := asFloat32(bufData(args[3]))

		out := reference.StepTwo[float32, float32, float32](b.Obs, beamMapping, shifts, input, b.SubbandedStride, b.OutputStride)
		putFloat32(output, out)

	default:
		return nil, &dedisp.DeviceError{Fatal: true, Err: errors.New("cpu: unknown entry " + string(p.entry))}
	}

	return doneEvent{}, nil
}

func bufData(b dedisp.Buffer) []byte {
	buf, ok := b.(*buffer)
	if !ok {
		return nil
	}
	return buf.data
}

func asFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func putFloat32(raw []byte, vals []float32) {
	for i, v := range vals {
		if (i+1)*4 > len(raw) {
			break
		}
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
}

func asZapMask(raw []byte) dedisp.ZapMask {
	mask := dedisp.NewZapMask(len(raw) / 4)
	for i := range mask {
		if binary.LittleEndian.Uint32(raw[i*4:]) != 0 {
			mask.Zap(i)
		}
	}
	return mask
}

func asBeamMapping(raw []byte, width, nrBeams int) dedisp.BeamMapping {
	n := len(raw) / 4
	entries := make([]int, n)
	for i := range entries {
		entries[i] = int(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	mapping, _ := dedisp.NewBeamMapping(entries, width, nrBeams)
	return mapping
}
