package corssh_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/oceanward/corssh/internal/corssh"
)

func TestDecoderStartsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path, []recSpec{{0, 1}, {1, 2}})
	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if !dec.IsBlank() {
		t.Error("current record should be blank before the first read")
	}
	if _, ok := dec.Date(); ok {
		t.Error("blank record should have no date")
	}
	if got := dec.Field(corssh.FieldHeight); got != 0 {
		t.Errorf("blank field = %d, want 0", got)
	}
}

func TestDecoderIteratesAcrossPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path,
		[]recSpec{{0, 1}, {1, 2}, {2, 3}},
		[]recSpec{}, // empty pass is legal
		[]recSpec{{3600, 4}, {3601, 5}},
	)
	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	times := collectTimes(t, dec)
	if len(times) != 5 {
		t.Fatalf("got %d records, want 5", len(times))
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			t.Fatalf("times not monotonic at %d: %d < %d", i, times[i], times[i-1])
		}
	}
	if times[0] != baseMs() || times[3] != baseMs()+3600_000 {
		t.Fatalf("unexpected times %v", times)
	}

	// Exhausted source keeps returning false.
	ok, err := dec.NextRecord()
	if err != nil || ok {
		t.Fatalf("read past end: ok=%v err=%v", ok, err)
	}
}

func TestDecoderCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path,
		[]recSpec{{10, 1}, {11, 2}},
		[]recSpec{{7200, 3}},
	)
	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if n, err := dec.PassCount(); err != nil || n != 2 {
		t.Errorf("PassCount = %d, %v; want 2", n, err)
	}
	if n, err := dec.RecordCount(); err != nil || n != 3 {
		t.Errorf("RecordCount = %d, %v; want 3", n, err)
	}
	if ms, err := dec.StartTime(); err != nil || ms != baseMs()+10_000 {
		t.Errorf("StartTime = %d, %v", ms, err)
	}
	if ms, err := dec.EndTime(); err != nil || ms != baseMs()+7200_000 {
		t.Errorf("EndTime = %d, %v", ms, err)
	}
}

func TestDecoderTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path, []recSpec{{0, 1}, {1, 2}, {2, 3}})

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, st.Size()-10); err != nil {
		t.Fatal(err)
	}

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var readErr error
	for {
		ok, err := dec.NextRecord()
		if err != nil {
			readErr = err
			break
		}
		if !ok {
			break
		}
	}
	if !errors.Is(readErr, corssh.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", readErr)
	}
}

func TestDecoderNegativeCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	var h corssh.Record
	h[corssh.FieldPassNumber] = 7
	h[corssh.FieldRecordCount] = -3
	var buf [corssh.RecordSize]byte
	h.Encode(buf[:])
	if err := os.WriteFile(path, buf[:], 0o644); err != nil {
		t.Fatal(err)
	}

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if _, err := dec.NextRecord(); !errors.Is(err, corssh.ErrInvalidCount) {
		t.Fatalf("err = %v, want ErrInvalidCount", err)
	}
}

func TestDecoderOrderingViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path, []recSpec{{100, 1}, {50, 2}})

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if ok, err := dec.NextRecord(); !ok || err != nil {
		t.Fatalf("first read: ok=%v err=%v", ok, err)
	}
	_, err = dec.NextRecord()
	var oe *corssh.OrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want OrderingError", err)
	}
}

func TestDecoderSeekPostcondition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	// Two passes with a gap, uneven spacing to stress the interpolation.
	var p1, p2 []recSpec
	for i := int32(0); i < 200; i++ {
		p1 = append(p1, recSpec{i * 2, i})
	}
	for i := int32(0); i < 200; i++ {
		p2 = append(p2, recSpec{5000 + i*3, 1000 + i})
	}
	writeFile(t, path, p1, p2)

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	targets := []int64{
		baseMs(),           // exactly the first record
		baseMs() + 1_000,   // between records of pass 1
		baseMs() + 7_000,   // mid pass 1
		baseMs() + 398_000, // exactly the last record of pass 1
		baseMs() + 399_500, // in the gap
		baseMs() + 5_000_000,
		baseMs() + 5_123_001,
		baseMs() + 5_597_000, // exactly the last record
	}
	for _, want := range targets {
		if err := dec.Seek(want); err != nil {
			t.Fatalf("seek %d: %v", want, err)
		}
		if ms, ok := dec.Date(); ok && ms >= want {
			t.Errorf("seek %d: current record %d not strictly before target", want, ms)
		}
		ok, err := dec.NextRecord()
		if err != nil || !ok {
			t.Fatalf("seek %d: next: ok=%v err=%v", want, ok, err)
		}
		ms, _ := dec.Date()
		if ms < want {
			t.Errorf("seek %d: next record %d before target", want, ms)
		}
	}
}

func TestDecoderSeekBeforeStartLeavesBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path, []recSpec{{100, 1}, {101, 2}})

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	if err := dec.Seek(baseMs()); err != nil {
		t.Fatal(err)
	}
	if !dec.IsBlank() {
		t.Error("no predecessor exists, current should be blank")
	}
	ok, err := dec.NextRecord()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if ms, _ := dec.Date(); ms != baseMs()+100_000 {
		t.Errorf("first record after seek = %d", ms)
	}
}

func TestDecoderSeekNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.corssh")
	writeFile(t, path, []recSpec{{0, 1}, {60, 2}})

	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	err = dec.Seek(baseMs() + 3_600_000)
	var nf *corssh.SeekNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want SeekNotFoundError", err)
	}
	if nf.Last != baseMs()+60_000 {
		t.Errorf("Last = %d, want %d", nf.Last, baseMs()+60_000)
	}
	// Stream is left at its final record.
	if ms, ok := dec.Date(); !ok || ms != baseMs()+60_000 {
		t.Errorf("current after failed seek = %d, %v", ms, ok)
	}
	if ok, err := dec.NextRecord(); ok || err != nil {
		t.Errorf("next after failed seek: ok=%v err=%v", ok, err)
	}
}

func TestDecoderSeekCrossFilePredecessor(t *testing.T) {
	dir := t.TempDir()
	prevPath := filepath.Join(dir, "prev.corssh")
	curPath := filepath.Join(dir, "cur.corssh")
	writeFile(t, prevPath, []recSpec{{0, 1}, {10, 99}})
	writeFile(t, curPath, []recSpec{{3600, 5}, {3610, 6}})

	called := false
	prev := func() (string, bool) {
		if called {
			return "", false
		}
		called = true
		return prevPath, true
	}
	dec, err := corssh.OpenFileWithPredecessors(curPath, prev)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	// The target precedes the whole file: the predecessor must come from
	// the earlier file's final record.
	if err := dec.Seek(baseMs() + 1_000_000); err != nil {
		t.Fatal(err)
	}
	if dec.IsBlank() {
		t.Fatal("predecessor should come from the earlier file")
	}
	if ms, _ := dec.Date(); ms != baseMs()+10_000 {
		t.Errorf("predecessor time = %d, want %d", ms, baseMs()+10_000)
	}
	if got := dec.Field(corssh.FieldHeight); got != 99 {
		t.Errorf("predecessor height = %d, want 99", got)
	}
	ok, err := dec.NextRecord()
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if ms, _ := dec.Date(); ms != baseMs()+3_600_000 {
		t.Errorf("successor time = %d", ms)
	}
}
