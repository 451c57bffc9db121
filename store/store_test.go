package store

import (
	"testing"
	"time"
)

// TileDB schema/array construction and I/O require a live tiledb.Context
// backed by the C library, so they are exercised as part of a deployed
// runtime rather than this unit test suite; the pure-Go helpers below are
// covered directly.

func TestDtypeOfRecognisesEverySurveyAndArchiveFieldType(t *testing.T) {
	for _, name := range []string{"uint8", "uint64", "float32", "float64", "string"} {
		if _, ok := dtypeOf(name); !ok {
			t.Fatalf("dtypeOf(%q) = not found, want a recognised datatype", name)
		}
	}
}

func TestDtypeOfRejectsUnknownName(t *testing.T) {
	if _, ok := dtypeOf("complex128"); ok {
		t.Fatal("dtypeOf(\"complex128\") reported ok, want not found")
	}
}

func TestJulianStampIsMonotonicWithWallClock(t *testing.T) {
	t1 := time.Date(2026, time.July, 30, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	jd1 := julianStamp(t1)
	jd2 := julianStamp(t2)

	if jd2-jd1 < 0.999 || jd2-jd1 > 1.001 {
		t.Fatalf("julianStamp difference across exactly one day = %v, want ~1.0", jd2-jd1)
	}
}

func TestJulianStampMatchesKnownEpoch(t *testing.T) {
	// 2000-01-01 12:00:00 UTC is JD 2451545.0 (the J2000 epoch).
	j2000 := time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)
	got := julianStamp(j2000)
	if got < 2451544.999 || got > 2451545.001 {
		t.Fatalf("julianStamp(J2000) = %v, want ~2451545.0", got)
	}
}
