package autotune

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond"

	dedisp "github.com/TRASAL/dedisp"
)

// Generator produces kernel source for one candidate configuration; the
// caller supplies kernelgen.GenerateDirect/GenerateStepOne/GenerateStepTwo
// bound to the observation and type plan under test.
type Generator func(dedisp.TuningPointConfig) (string, error)

// Launcher submits one timed kernel launch for a compiled candidate,
// returning the device event to wait on. Buffer allocation/population is the
// caller's responsibility.
type Launcher func(ctx context.Context, program dedisp.Program, cfg dedisp.TuningPointConfig) (dedisp.Event, error)

// Workload bundles the operation counts the GFLOP/s estimate is derived
// from: a fully nested product over beams, DMs, channels and samples.
type Workload struct {
	Beams int
	DMs int
	NonZappedChans int
	Samples int
	FlopsPerSample float64 // multiply-accumulates per (beam, DM, channel, sample) tuple, counted as 2 FLOPs each
}

func (w Workload) totalFlops() float64 {
	return float64(w.Beams) * float64(w.DMs) * float64(w.NonZappedChans) * float64(w.Samples) * w.FlopsPerSample * 2
}

// Tune compiles, warms up and times every candidate against backend and
// entry, returning the full survey and the fastest legal measurement.
// Candidates are submitted to a fixed worker pool sized at runtime.NumCPU;
// the pool only parallelizes host-side compile/submit bookkeeping, never
// overlapping two candidates' timed device launches against the same
// shared buffers.
func Tune(ctx context.Context, backend dedisp.Backend, entry dedisp.Entry, gen Generator, launch Launcher, candidates []dedisp.TuningPointConfig, nrIterations int, workload Workload, now func() time.Time) (Survey, dedisp.TuningPointConfig, error) {
	if len(candidates) == 0 {
		return nil, dedisp.TuningPointConfig{}, dedisp.ErrNoCandidates
	}

	survey := make(Survey, len(candidates))
	var launchMu sync.Mutex

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n))

	for i, cfg := range candidates {
		i, cfg := i, cfg
		pool.Submit(func() {
			survey[i] = measure(ctx, backend, entry, gen, launch, cfg, nrIterations, workload, now, &launchMu)
		})
	}
	pool.StopAndWait()

	for _, m := range survey {
		var devErr *dedisp.DeviceError
		if errors.As(m.Err, &devErr) && devErr.Fatal {
			return survey, dedisp.TuningPointConfig{}, m.Err
		}
	}

	winner, ok := survey.Fastest()
	if !ok {
		return survey, dedisp.TuningPointConfig{}, dedisp.ErrNoCandidates
	}
	return survey, winner.Config, nil
}

func measure(ctx context.Context, backend dedisp.Backend, entry dedisp.Entry, gen Generator, launch Launcher, cfg dedisp.TuningPointConfig, nrIterations int, workload Workload, now func() time.Time, launchMu *sync.Mutex) Measurement {
	source, err := gen(cfg)
	if err != nil {
		return Measurement{Config: cfg, Err: err, At: now()}
	}

	// any compile failure (malformed generated source, unsupported
	// construct, etc.) simply skips the candidate
	program, err := backend.Compile(ctx, entry, source)
	if err != nil {
		return Measurement{Config: cfg, Err: err, At: now()}
	}

	// warm-up and timed launches hold launchMu, so launches of different
	// candidates never overlap
	launchMu.Lock()
	defer launchMu.Unlock()

	// warm-up launch, discarded
	if ev, err := launch(ctx, program, cfg); err != nil {
		return classifyDeviceError(cfg, err, now)
	} else if err := ev.Wait(ctx); err != nil {
		return classifyDeviceError(cfg, err, now)
	}

	samples := make([]float64, 0, nrIterations)
	for i := 0; i < nrIterations; i++ {
		start := now()
		ev, err := launch(ctx, program, cfg)
		if err != nil {
			return classifyDeviceError(cfg, err, now)
		}
		if err := ev.Wait(ctx); err != nil {
			return classifyDeviceError(cfg, err, now)
		}
		samples = append(samples, now().Sub(start).Seconds()*1000.0)
	}

	mean, _, _ := meanStddevCOV(samples)
	gflops := workload.totalFlops() / (mean / 1000.0) / 1e9

	return Measurement{Config: cfg, Milliseconds: mean, GFLOPS: gflops, At: now()}
}

// classifyDeviceError records a device error on the measurement; Tune
// inspects the survey afterward to tell a soft error (skip the candidate)
// from a fatal one (abort the session).
func classifyDeviceError(cfg dedisp.TuningPointConfig, err error, now func() time.Time) Measurement {
	return Measurement{Config: cfg, Err: err, At: now()}
}

// meanStddevCOV computes the sample mean, standard deviation and
// coefficient of variation of a timing series.
func meanStddevCOV(samples []float64) (mean, stddev, cov float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean = sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	stddev = math.Sqrt(variance)
	if mean != 0 {
		cov = stddev / mean
	}
	return mean, stddev, cov
}
