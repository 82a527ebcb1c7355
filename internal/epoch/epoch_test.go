package epoch

import (
	"testing"
	"time"
)

func TestToTimeMilliseconds(t *testing.T) {
	loc := time.UTC
	got, err := ToTime(1_700_000_000_000, Milliseconds, loc)
	if err != nil {
		t.Fatalf("ToTime: %v", err)
	}
	want := time.UnixMilli(1_700_000_000_000).In(loc)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestToEpochRoundTrip(t *testing.T) {
	loc := time.UTC
	orig := int64(1_700_000_000)
	t1, err := ToTime(orig, Seconds, loc)
	if err != nil {
		t.Fatalf("ToTime: %v", err)
	}
	back, err := ToEpoch(t1, Seconds, loc)
	if err != nil {
		t.Fatalf("ToEpoch: %v", err)
	}
	if back != orig {
		t.Fatalf("round trip mismatch: got %d, want %d", back, orig)
	}
}

func TestDayIndexRollover(t *testing.T) {
	loc := time.UTC
	d1 := time.Date(2024, 3, 1, 23, 59, 0, 0, loc)
	d2 := time.Date(2024, 3, 2, 0, 1, 0, 0, loc)

	i1 := DayIndex(d1, loc)
	i2 := DayIndex(d2, loc)

	if i2 != i1+1 {
		t.Fatalf("expected day rollover: i1=%d i2=%d", i1, i2)
	}
}

func TestDayIndexStableWithinDay(t *testing.T) {
	loc := time.UTC
	a := time.Date(2024, 3, 1, 1, 0, 0, 0, loc)
	b := time.Date(2024, 3, 1, 23, 0, 0, 0, loc)

	if DayIndex(a, loc) != DayIndex(b, loc) {
		t.Fatalf("expected same day index within a day")
	}
}

func TestLocationDefaultsToUTC(t *testing.T) {
	cfg := Config{Unit: Milliseconds}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC default, got %v", loc)
	}
}

func TestLocationNamedTimezone(t *testing.T) {
	cfg := Config{Unit: Milliseconds, Timezone: "America/New_York"}
	loc, err := cfg.Location()
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("got %v", loc)
	}
}
