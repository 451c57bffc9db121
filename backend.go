package dedisp

import "context"

// MemoryRole selects the access mode a device buffer is allocated with.
type MemoryRole int

const (
	MemReadOnly MemoryRole = iota
	MemReadWrite
	MemWriteOnly
)

// Entry names the kernel entry point emitted by the generator for each
// algorithm variant.
type Entry string

const (
	EntryDirect Entry = "dedispersion"
	EntryStepOne Entry = "dedispersionStepOne"
	EntryStepTwo Entry = "dedispersionStepTwo"
)

// Range3D is a 3-dimensional work range: (samples, DMs, beam-or-subband),
// matching the kernel generator's work-grid mapping.
type Range3D struct {
	D0, D1, D2 int
}

// Buffer is an opaque handle to device memory, returned by Backend.Alloc.
type Buffer interface{}

// Program is an opaque handle to a compiled kernel, returned by
// Backend.Compile.
type Program interface{}

// Event represents a submitted device operation that can be waited on.
type Event interface {
	Wait(ctx context.Context) error
}

// CompileError carries the compiler log produced by a failed Backend.Compile
// call (Kernel compile failure).
type CompileError struct {
	Entry Entry
	Log string
	Err error
}

func (e *CompileError) Error() string { return e.Err.Error() + ": " + e.Log }
func (e *CompileError) Unwrap() error { return e.Err }

// DeviceError classifies a runtime device failure as either soft (the
// autotuner skips the candidate) or hard (the autotuner/driver aborts).
// A soft memory error is recorded like any other soft error; device memory
// is not flagged or reinitialized.
type DeviceError struct {
	Fatal bool
	Err error
}

func (e *DeviceError) Error() string { return e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }

// Backend is the accelerator runtime contract consumed by this core:
// compiling kernel source, allocating buffers, and enqueueing a kernel over
// a 3D global/local range. Kernel compilation, buffer allocation and queue
// submission are out of scope for this core; this interface is the seam
// a real OpenCL/CUDA/Metal runtime plugs into.
type Backend interface {
	Name() string

	// Compile builds source for the named entry point, returning a Program
	// handle or a *CompileError.
	Compile(ctx context.Context, entry Entry, source string) (Program, error)

	// Alloc allocates a device buffer of size bytes with the given role.
	Alloc(ctx context.Context, role MemoryRole, size int) (Buffer, error)

	// Write transfers host data to a device buffer, blocking until complete
	// if blocking is true.
	Write(ctx context.Context, dst Buffer, src []byte, blocking bool) (Event, error)

	// Read transfers device data back to host memory, blocking until
	// complete if blocking is true.
	Read(ctx context.Context, dst []byte, src Buffer, blocking bool) (Event, error)

	// Enqueue launches program over the given global and local (block)
	// ranges with the positional argument buffers, returning an event.
	Enqueue(ctx context.Context, program Program, global, local Range3D, args []Buffer) (Event, error)

	// Free releases a device buffer.
	Free(buf Buffer) error
}
