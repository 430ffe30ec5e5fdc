package corssh_test

import (
	"testing"

	"github.com/oceanward/corssh/internal/corssh"
)

// recSpec describes one synthetic data record: a time offset in seconds from
// day 100 and a height in millimeters used as a recognizable value.
type recSpec struct {
	sec int32
	h   int32
}

const testBaseDay = 100

// baseMs is the absolute time of second offset zero.
func baseMs() int64 { return corssh.TimeMs(testBaseDay, 0, 0) }

func makeRecord(spec recSpec) corssh.Record {
	var r corssh.Record
	r[corssh.FieldDay] = testBaseDay + spec.sec/86_400
	r[corssh.FieldSecond] = spec.sec % 86_400
	r[corssh.FieldLatitude] = 1_000_000 + spec.sec*1000
	r[corssh.FieldLongitude] = 100_000_000 + spec.sec*1000
	r[corssh.FieldHeight] = spec.h
	r[corssh.FieldMeanHeight] = 10_000
	return r
}

// writeFile writes one CORSSH file made of the given passes, numbering them
// sequentially from 1.
func writeFile(t *testing.T, path string, passes ...[]recSpec) {
	t.Helper()
	w, err := corssh.NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, pass := range passes {
		var startDay, startSec int32 = testBaseDay, 0
		if len(pass) > 0 {
			startDay = testBaseDay + pass[0].sec/86_400
			startSec = pass[0].sec % 86_400
		}
		if err := w.BeginPass(int32(i+1), int32(len(pass)), startDay, startSec, 0); err != nil {
			t.Fatal(err)
		}
		for _, spec := range pass {
			if err := w.WriteRecord(makeRecord(spec)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

// collectTimes drains a source, returning every record time in order.
func collectTimes(t *testing.T, src corssh.RecordSource) []int64 {
	t.Helper()
	var times []int64
	for {
		ok, err := src.NextRecord()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return times
		}
		ms, valid := src.Date()
		if !valid {
			t.Fatal("record delivered but Date reports blank")
		}
		times = append(times, ms)
	}
}
