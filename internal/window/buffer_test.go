package window_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/oceanward/corssh/internal/corssh"
	"github.com/oceanward/corssh/internal/window"
)

const testDay = 200

func baseMs() int64 { return corssh.TimeMs(testDay, 0, 0) }

// pointSpec is one synthetic record: seconds from day 200, fixed-point
// coordinates, and a height anomaly in millimeters (written as
// mean + anomaly so the buffered value equals the anomaly).
type pointSpec struct {
	sec      int32
	lat, lon int32
	anomMm   int32
}

func writePoints(t *testing.T, path string, points []pointSpec) {
	t.Helper()
	w, err := corssh.NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.BeginPass(1, int32(len(points)), testDay, 0, 0); err != nil {
		t.Fatal(err)
	}
	for _, p := range points {
		var r corssh.Record
		r[corssh.FieldDay] = testDay + p.sec/86_400
		r[corssh.FieldSecond] = p.sec % 86_400
		r[corssh.FieldLatitude] = p.lat
		r[corssh.FieldLongitude] = p.lon
		r[corssh.FieldMeanHeight] = 10_000
		r[corssh.FieldHeight] = 10_000 + p.anomMm
		if err := w.WriteRecord(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func openPoints(t *testing.T, points []pointSpec) *corssh.FileDecoder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pts.corssh")
	writePoints(t, path, points)
	dec, err := corssh.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dec.Close() })
	return dec
}

var wholeWorld = window.Rect{MinLat: -90_000_000, MaxLat: 90_000_000, MinLon: 0, MaxLon: 360_000_000}

func TestSetTimeRangeStatuses(t *testing.T) {
	points := []pointSpec{
		{0, 1_000_000, 10_000_000, 1},
		{10, 2_000_000, 11_000_000, 2},
		{20, 3_000_000, 12_000_000, 3},
		{30, 4_000_000, 13_000_000, 4},
	}
	src := openPoints(t, points)
	buf := window.NewBuffer(src, wholeWorld)

	status, err := buf.SetTimeRange(baseMs(), baseMs()+15_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if status != window.LoadTimeLimit {
		t.Errorf("status = %v, want time-limit", status)
	}
	// The record that crossed the boundary is retained for window reuse.
	if buf.Len() != 3 {
		t.Errorf("Len = %d, want 3", buf.Len())
	}

	status, err = buf.SetTimeRange(baseMs()+10_000, baseMs()+86_400_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if status != window.LoadExhausted {
		t.Errorf("status = %v, want exhausted", status)
	}
	if buf.Len() != 3 {
		t.Errorf("Len = %d, want 3 (records at 10,20,30s)", buf.Len())
	}
	if ms, _ := buf.FirstTime(); ms != baseMs()+10_000 {
		t.Errorf("FirstTime = %d", ms)
	}
}

func TestSetTimeRangeRecordLimit(t *testing.T) {
	var points []pointSpec
	for i := int32(0); i < 10; i++ {
		points = append(points, pointSpec{i, 1_000_000, 10_000_000, i})
	}
	src := openPoints(t, points)
	buf := window.NewBuffer(src, wholeWorld)

	status, err := buf.SetTimeRange(baseMs(), baseMs()+86_400_000, 4)
	if err != nil {
		t.Fatal(err)
	}
	if status != window.LoadRecordLimit {
		t.Errorf("status = %v, want record-limit", status)
	}
	if buf.Len() != 4 {
		t.Errorf("Len = %d, want 4", buf.Len())
	}
}

func TestSetTimeRangeReusesSuffix(t *testing.T) {
	var points []pointSpec
	for i := int32(0); i < 100; i++ {
		points = append(points, pointSpec{i, 1_000_000, 10_000_000, i})
	}
	src := openPoints(t, points)
	buf := window.NewBuffer(src, wholeWorld)

	if _, err := buf.SetTimeRange(baseMs(), baseMs()+49_000, 0); err != nil {
		t.Fatal(err)
	}
	// Slide forward: the overlap [30s,50s] must be retained and reading
	// must continue where the source stopped, without loss or duplicates.
	if _, err := buf.SetTimeRange(baseMs()+30_000, baseMs()+80_000, 0); err != nil {
		t.Fatal(err)
	}
	n := buf.Len()
	for i := 0; i < n; i++ {
		p := buf.Point(i)
		want := baseMs() + int64(30+i)*1000
		if p.TimeMs != want {
			t.Fatalf("point %d at %d, want %d", i, p.TimeMs, want)
		}
		if p.ValueMm != int32(30+i) {
			t.Fatalf("point %d value %d, want %d", i, p.ValueMm, 30+i)
		}
	}
	if first, _ := buf.FirstTime(); first != baseMs()+30_000 {
		t.Errorf("FirstTime = %d", first)
	}
}

func TestIngestionFiltersLandAndShape(t *testing.T) {
	points := []pointSpec{
		{0, 1_000_000, 10_000_000, 1},
		{1, 2_000_000, corssh.LandLongitude, 2}, // over land
		{2, 80_000_000, 10_000_000, 3},          // outside region
		{3, 3_000_000, 11_000_000, 4},
	}
	src := openPoints(t, points)
	region := window.Rect{MinLat: -10_000_000, MaxLat: 10_000_000, MinLon: 0, MaxLon: 360_000_000}
	buf := window.NewBuffer(src, region)

	if _, err := buf.SetTimeRange(baseMs(), baseMs()+60_000, 0); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2 {
		t.Fatalf("Len = %d, want 2", buf.Len())
	}
	if buf.Point(0).ValueMm != 1 || buf.Point(1).ValueMm != 4 {
		t.Errorf("kept values %d, %d", buf.Point(0).ValueMm, buf.Point(1).ValueMm)
	}
	if err := buf.CheckIndex(); err != nil {
		t.Error(err)
	}
}

// Five points at known coordinates; a rectangle covering exactly three.
func loadFivePoints(t *testing.T) *window.Buffer {
	t.Helper()
	points := []pointSpec{
		{0, 1_000_000, 10_000_000, 1},
		{10, 2_000_000, 11_000_000, 2},
		{20, 3_000_000, 12_000_000, 3},
		{30, 40_000_000, 200_000_000, 4},
		{40, -50_000_000, 300_000_000, 5},
	}
	src := openPoints(t, points)
	buf := window.NewBuffer(src, wholeWorld)
	if _, err := buf.SetTimeRange(baseMs(), baseMs()+60_000, 0); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 5 {
		t.Fatalf("Len = %d, want 5", buf.Len())
	}
	return buf
}

func queryValues(t *testing.T, cur *window.Cursor) map[int32]bool {
	t.Helper()
	got := map[int32]bool{}
	for {
		p, ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return got
		}
		got[p.ValueMm] = true
	}
}

func TestPointsInsideRect(t *testing.T) {
	buf := loadFivePoints(t)
	rect := window.Rect{MinLat: 0, MaxLat: 5_000_000, MinLon: 9_000_000, MaxLon: 13_000_000}

	for _, tr := range []*window.TimeRange{
		nil,
		{StartMs: baseMs(), EndMs: baseMs() + 60_000},
	} {
		got := queryValues(t, buf.PointsInside(rect, tr))
		if len(got) != 3 || !got[1] || !got[2] || !got[3] {
			t.Errorf("tr=%v: got %v, want {1,2,3}", tr, got)
		}
	}
}

func TestPointsInsideTimeRestriction(t *testing.T) {
	buf := loadFivePoints(t)
	rect := window.Rect{MinLat: 0, MaxLat: 5_000_000, MinLon: 9_000_000, MaxLon: 13_000_000}
	tr := &window.TimeRange{StartMs: baseMs() + 5_000, EndMs: baseMs() + 25_000}
	got := queryValues(t, buf.PointsInside(rect, tr))
	if len(got) != 2 || !got[2] || !got[3] {
		t.Errorf("got %v, want {2,3}", got)
	}
}

func TestCursorInvalidatedByMutation(t *testing.T) {
	buf := loadFivePoints(t)
	cur := buf.PointsInside(wholeWorld, nil)

	if _, err := buf.SetTimeRange(baseMs()+10_000, baseMs()+60_000, 0); err != nil {
		t.Fatal(err)
	}
	_, _, err := cur.Next()
	if !errors.Is(err, window.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if _, err := cur.Count(); !errors.Is(err, window.ErrConcurrentModification) {
		t.Fatalf("Count err = %v, want ErrConcurrentModification", err)
	}
}

func TestCheckIndexInvariant(t *testing.T) {
	buf := loadFivePoints(t)
	if err := buf.CheckIndex(); err != nil {
		t.Fatal(err)
	}
}
