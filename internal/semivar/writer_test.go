package semivar

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteHistogram(t *testing.T) {
	a := NewAccumulator()
	a.AddValue(0)
	a.AddValue(0)
	a.AddValue(-10)
	a.AddValue(-5)

	var buf bytes.Buffer
	if err := a.WriteHistogram(&buf); err != nil {
		t.Fatalf("WriteHistogram: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1+HistBuckets {
		t.Fatalf("got %d lines, want %d", len(lines), 1+HistBuckets)
	}
	if lines[0] != "height_cm\tcount" {
		t.Errorf("header = %q", lines[0])
	}
	// Bucket 200 covers [0, 10) mm, center 0.5 cm. Bucket 199 covers
	// [-10, 0) mm, center -0.5 cm, and holds both -10 and -5.
	if got := lines[1+200]; got != "0.5000\t2" {
		t.Errorf("center bucket line = %q", got)
	}
	if got := lines[1+199]; got != "-0.5000\t2" {
		t.Errorf("below-center bucket line = %q", got)
	}
	if got := lines[1]; got != "-1999.5000\t0" {
		t.Errorf("first bucket line = %q", got)
	}
}

func TestWriteTable(t *testing.T) {
	a := NewAccumulator()
	// Two identical pairs in one cell: lat band 12 (center 35), lag bucket 1
	// (center 9 h), distance bucket 2 (center 5 km). Lag of 9 h and distance
	// of 5 km sit exactly on the centers, so the means equal the centers.
	for i := 0; i < 2; i++ {
		if err := a.AddPair(35, 9*3600*1000, 5.0, 120); err != nil {
			t.Fatalf("AddPair: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := a.WriteTable(&buf); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one bucket", len(lines))
	}
	if lines[0] != "latitude\ttime_lag_days\tdistance_km\tmean_abs_diff_cm\trms_diff_cm\tpair_count" {
		t.Errorf("header = %q", lines[0])
	}
	// 9 h = 0.375 days; 120 mm = 12 cm for both the mean and the RMS.
	if lines[1] != "35.0000\t0.3750\t5.0000\t12.0000\t12.0000\t2" {
		t.Errorf("bucket line = %q", lines[1])
	}
}
