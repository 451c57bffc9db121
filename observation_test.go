package dedisp

import "testing"

func testObservation(t *testing.T) Observation {
	t.Helper()
	obs, err := NewObservation(
		8, 1300.0, 10.0,
		4,
		DMRange{Count: 4, First: 0, Step: 10},
		DMRange{Count: 16, First: 0, Step: 2.5},
		1, 1, 256, 1, 64,
	)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	return obs
}

func TestNewObservationRejectsZeroChannels(t *testing.T) {
	if _, err := NewObservation(0, 1400, -10, 1, DMRange{}, DMRange{}, 1, 1, 256, 1, 0); err != ErrZeroChannels {
		t.Fatalf("got %v, want ErrZeroChannels", err)
	}
}

func TestNewObservationRejectsZeroSamplesPerBatch(t *testing.T) {
	if _, err := NewObservation(8, 1400, -10, 1, DMRange{}, DMRange{}, 1, 1, 0, 1, 0); err != ErrZeroSamplesPerBatch {
		t.Fatalf("got %v, want ErrZeroSamplesPerBatch", err)
	}
}

func TestNewObservationRejectsZeroDownsampling(t *testing.T) {
	if _, err := NewObservation(8, 1400, -10, 1, DMRange{}, DMRange{}, 1, 1, 256, 0, 0); err != ErrZeroDownsampling {
		t.Fatalf("got %v, want ErrZeroDownsampling", err)
	}
}

func TestNewObservationRejectsSubbandsNotDividingChannels(t *testing.T) {
	if _, err := NewObservation(8, 1400, -10, 3, DMRange{}, DMRange{}, 1, 1, 256, 1, 0); err != ErrSubbandsDontDivideChannels {
		t.Fatalf("got %v, want ErrSubbandsDontDivideChannels", err)
	}
}

func TestPadSamples(t *testing.T) {
	obs := testObservation(t)
	if got := obs.PadSamples(100, 4); got != 112 {
		t.Fatalf("PadSamples(100,4) = %d, want 112 (next multiple of 16 elements)", got)
	}
	if got := obs.PadSamples(128, 4); got != 128 {
		t.Fatalf("PadSamples(128,4) = %d, want 128 (already aligned)", got)
	}
}

func TestNrChannelsPerSubband(t *testing.T) {
	obs := testObservation(t)
	if got := obs.NrChannelsPerSubband(); got != 2 {
		t.Fatalf("NrChannelsPerSubband() = %d, want 2", got)
	}
}

func TestSubbandEdgeFrequencies(t *testing.T) {
	obs := testObservation(t)
	if got := obs.SubbandMinFreq(0); got != obs.ChannelFreq(0) {
		t.Fatalf("SubbandMinFreq(0) = %v, want channel 0 freq %v", got, obs.ChannelFreq(0))
	}
	if got := obs.SubbandMaxFreq(0); got != obs.ChannelFreq(1) {
		t.Fatalf("SubbandMaxFreq(0) = %v, want channel 1 freq %v", got, obs.ChannelFreq(1))
	}
}
