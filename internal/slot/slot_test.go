/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slot

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "mid window floors to previous boundary",
			now:  time.Date(2024, 1, 1, 13, 7, 0, 0, time.UTC),
			want: "13_00",
		},
		{
			name: "last second of the hour floors to 45",
			now:  time.Date(2024, 1, 1, 13, 59, 59, 0, time.UTC),
			want: "13_45",
		},
		{
			name: "exact boundary is its own slot",
			now:  time.Date(2024, 1, 1, 13, 30, 0, 0, time.UTC),
			want: "13_30",
		},
		{
			name: "midnight zero pads both fields",
			now:  time.Date(2024, 1, 1, 0, 4, 59, 0, time.UTC),
			want: "00_00",
		},
		{
			name: "non-UTC input resolves in UTC",
			now:  time.Date(2024, 6, 1, 9, 20, 0, 0, time.FixedZone("CEST", 2*60*60)),
			want: "07_15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.now); got != tt.want {
				t.Errorf("Resolve(%v) = %q, want %q", tt.now, got, tt.want)
			}
		})
	}
}

func TestResolveStableWithinWindow(t *testing.T) {
	base := time.Date(2024, 3, 10, 21, 45, 0, 0, time.UTC)
	want := Resolve(base)

	for offset := time.Duration(0); offset < Window; offset += 31 * time.Second {
		got := Resolve(base.Add(offset))
		if got != want {
			t.Fatalf("Resolve changed inside window at +%v: %q != %q", offset, got, want)
		}
	}

	if next := Resolve(base.Add(Window)); next == want {
		t.Fatalf("Resolve did not change at the window boundary: still %q", next)
	}
}

func TestResolveIdempotent(t *testing.T) {
	now := time.Date(2024, 7, 4, 16, 38, 12, 500, time.UTC)
	first := Resolve(now)
	for i := 0; i < 3; i++ {
		if got := Resolve(now); got != first {
			t.Fatalf("Resolve not idempotent: %q != %q", got, first)
		}
	}
}

func TestValidID(t *testing.T) {
	valid := []string{"00_00", "07_15", "13_30", "23_45"}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "13_07", "24_00", "3_00", "13-00", "13_0", "afternoon", "13_000"}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestFloor(t *testing.T) {
	now := time.Date(2024, 1, 1, 13, 59, 59, 0, time.UTC)
	want := time.Date(2024, 1, 1, 13, 45, 0, 0, time.UTC)
	if got := Floor(now); !got.Equal(want) {
		t.Errorf("Floor(%v) = %v, want %v", now, got, want)
	}
}
