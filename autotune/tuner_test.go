package autotune

import (
	"context"
	"testing"
	"time"

	dedisp "github.com/TRASAL/dedisp"
)

type fakeEvent struct{}

func (fakeEvent) Wait(ctx context.Context) error { return nil }

type fakeBackend struct{}

func (fakeBackend) Name() string { return "fake" }
func (fakeBackend) Compile(ctx context.Context, entry dedisp.Entry, source string) (dedisp.Program, error) {
	return struct{}{}, nil
}
func (fakeBackend) Alloc(ctx context.Context, role dedisp.MemoryRole, size int) (dedisp.Buffer, error) {
	panic("not used by Tune")
}
func (fakeBackend) Write(ctx context.Context, dst dedisp.Buffer, src []byte, blocking bool) (dedisp.Event, error) {
	panic("not used by Tune")
}
func (fakeBackend) Read(ctx context.Context, dst []byte, src dedisp.Buffer, blocking bool) (dedisp.Event, error) {
	panic("not used by Tune")
}
func (fakeBackend) Enqueue(ctx context.Context, program dedisp.Program, global, local dedisp.Range3D, args []dedisp.Buffer) (dedisp.Event, error) {
	panic("not used by Tune")
}
func (fakeBackend) Free(buf dedisp.Buffer) error { return nil }

func noopGenerator(cfg dedisp.TuningPointConfig) (string, error) { return "source", nil }

func testWorkload() Workload {
	return Workload{Beams: 1, DMs: 1, NonZappedChans: 1, Samples: 1, FlopsPerSample: 1}
}

func TestTuneSelectsTheFasterCandidate(t *testing.T) {
	fast := dedisp.TuningPointConfig{ThreadsD0: 32, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1}
	slow := dedisp.TuningPointConfig{ThreadsD0: 64, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1}

	launch := func(ctx context.Context, program dedisp.Program, cfg dedisp.TuningPointConfig) (dedisp.Event, error) {
		d := time.Millisecond
		if cfg.ThreadsD0 == 64 {
			d = 20 * time.Millisecond
		}
		time.Sleep(d)
		return fakeEvent{}, nil
	}

	survey, winner, err := Tune(context.Background(), fakeBackend{}, dedisp.EntryDirect, noopGenerator, launch,
		[]dedisp.TuningPointConfig{slow, fast}, 2, testWorkload(), time.Now)
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if len(survey) != 2 {
		t.Fatalf("len(survey) = %d, want 2", len(survey))
	}
	if winner != fast {
		t.Fatalf("winner = %+v, want the faster candidate %+v", winner, fast)
	}
}

func TestTuneRejectsEmptyCandidateList(t *testing.T) {
	_, _, err := Tune(context.Background(), fakeBackend{}, dedisp.EntryDirect, noopGenerator, nil, nil, 1, testWorkload(), time.Now)
	if err != dedisp.ErrNoCandidates {
		t.Fatalf("Tune with no candidates = %v, want ErrNoCandidates", err)
	}
}

func TestTuneAbortsOnFatalDeviceError(t *testing.T) {
	cfgs := []dedisp.TuningPointConfig{
		{ThreadsD0: 32, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1},
		{ThreadsD0: 64, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1},
	}
	launch := func(ctx context.Context, program dedisp.Program, cfg dedisp.TuningPointConfig) (dedisp.Event, error) {
		if cfg.ThreadsD0 == 64 {
			return nil, &dedisp.DeviceError{Fatal: true, Err: context.DeadlineExceeded}
		}
		return fakeEvent{}, nil
	}

	_, _, err := Tune(context.Background(), fakeBackend{}, dedisp.EntryDirect, noopGenerator, launch, cfgs, 1, testWorkload(), time.Now)
	if err == nil {
		t.Fatal("Tune with a fatal device error on one candidate returned nil error")
	}
}

func TestTuneSkipsSoftDeviceErrorsAndPicksAmongSurvivors(t *testing.T) {
	ok := dedisp.TuningPointConfig{ThreadsD0: 32, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1}
	bad := dedisp.TuningPointConfig{ThreadsD0: 48, ThreadsD1: 1, ItemsD0: 1, ItemsD1: 1, Unroll: 1}

	launch := func(ctx context.Context, program dedisp.Program, cfg dedisp.TuningPointConfig) (dedisp.Event, error) {
		if cfg.ThreadsD0 == 48 {
			return nil, &dedisp.DeviceError{Fatal: false, Err: context.Canceled}
		}
		return fakeEvent{}, nil
	}

	survey, winner, err := Tune(context.Background(), fakeBackend{}, dedisp.EntryDirect, noopGenerator, launch,
		[]dedisp.TuningPointConfig{ok, bad}, 1, testWorkload(), time.Now)
	if err != nil {
		t.Fatalf("Tune: %v", err)
	}
	if winner != ok {
		t.Fatalf("winner = %+v, want the only surviving candidate %+v", winner, ok)
	}
	if len(survey.Successful()) != 1 {
		t.Fatalf("len(Successful()) = %d, want 1", len(survey.Successful()))
	}
}
