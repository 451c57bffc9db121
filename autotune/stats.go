package autotune

import (
	"time"

	"github.com/samber/lo"

	dedisp "github.com/TRASAL/dedisp"
)

// Measurement is one candidate's timed result from Tune: either a
// milliseconds/GFLOP-s pair for a legal, successfully launched candidate, or
// an error recording why it was skipped (illegal, failed to compile, or a
// soft device error).
type Measurement struct {
	Config dedisp.TuningPointConfig
	Milliseconds float64
	GFLOPS float64
	Err error
	At time.Time
}

// Survey is the set of measurements collected for one (device, nrDMs) point.
type Survey []Measurement

// Successful returns the subset of the survey that launched without error.
func (s Survey) Successful() []Measurement {
	return lo.Filter(s, func(m Measurement, _ int) bool { return m.Err == nil })
}

// Fastest returns the measurement with the highest GFLOP/s, breaking ties by
// keeping the first-seen entry (lo.MaxBy keeps the first maximum it visits).
func (s Survey) Fastest() (Measurement, bool) {
	ok := s.Successful()
	if len(ok) == 0 {
		return Measurement{}, false
	}
	return lo.MaxBy(ok, func(a, b Measurement) bool { return a.GFLOPS > b.GFLOPS }), true
}

// DistinctConfigCount reports how many distinct configurations were actually
// measured, ignoring duplicate resubmissions of the same candidate.
func (s Survey) DistinctConfigCount() int {
	return len(lo.UniqBy(s, func(m Measurement) dedisp.TuningPointConfig { return m.Config }))
}
