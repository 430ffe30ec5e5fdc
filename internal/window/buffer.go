package window

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/oceanward/corssh/internal/corssh"
)

// Record tuple layout: 5 int32 words per record, flat in one array.
const (
	tupleWords = 5

	offLat    = 0
	offLon    = 1
	offTimeHi = 2
	offTimeLo = 3
	offValue  = 4
)

// Capacity growth bounds, in records per resize. The array doubles when
// doubling stays within these bounds, and is trimmed back to length plus
// trimMarginRecords once a batch completes.
const (
	minGrowRecords    = 4096
	maxGrowRecords    = 262144
	trimMarginRecords = 4096
)

// gridDim is the fixed spatial index resolution per axis.
const gridDim = 64

// LoadStatus reports which limit ended a SetTimeRange batch.
type LoadStatus int

const (
	// LoadTimeLimit: a record past the requested end time was reached.
	LoadTimeLimit LoadStatus = iota
	// LoadRecordLimit: the record cap was hit before the end time.
	LoadRecordLimit
	// LoadExhausted: the underlying source ran out of records.
	LoadExhausted
)

func (s LoadStatus) String() string {
	switch s {
	case LoadTimeLimit:
		return "time-limit"
	case LoadRecordLimit:
		return "record-limit"
	case LoadExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("LoadStatus(%d)", int(s))
}

// Point is one buffered record in physical-ish units: fixed-point
// coordinates, a millisecond timestamp, and the measured value in
// millimeters.
type Point struct {
	LatMicro int32
	LonMicro int32
	TimeMs   int64
	ValueMm  int32
}

// Buffer is a bounded sliding-window store over a chronological record
// source, with a lazily rebuilt 64x64 grid index over the region's bounding
// box. It is not safe for concurrent use; any outstanding cursor is
// invalidated by the next mutation.
type Buffer struct {
	src    corssh.RecordSource
	region Shape

	data []int32 // length always a multiple of tupleWords
	n    int

	skipped    int64
	modCount   uint64
	cells      [][]int32
	gridValid  bool
	positioned bool // src is positioned immediately after the held data
}

// NewBuffer creates an empty buffer ingesting from src, keeping only records
// inside region.
func NewBuffer(src corssh.RecordSource, region Shape) *Buffer {
	return &Buffer{src: src, region: region}
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int { return b.n }

// ModCount returns the current modification counter.
func (b *Buffer) ModCount() uint64 { return b.modCount }

// Skipped returns the number of records discarded during ingestion over the
// buffer's lifetime: land records, out-of-range codewords, and records
// outside the region.
func (b *Buffer) Skipped() int64 { return b.skipped }

func (b *Buffer) timeAt(i int) int64 {
	base := i * tupleWords
	return int64(b.data[base+offTimeHi])<<32 | int64(uint32(b.data[base+offTimeLo]))
}

// Point returns the buffered record at index i.
func (b *Buffer) Point(i int) Point {
	base := i * tupleWords
	return Point{
		LatMicro: b.data[base+offLat],
		LonMicro: b.data[base+offLon],
		TimeMs:   b.timeAt(i),
		ValueMm:  b.data[base+offValue],
	}
}

// Search returns the smallest index whose record time is at or after ms,
// which is Len() when no such record is held.
func (b *Buffer) Search(ms int64) int {
	return sort.Search(b.n, func(i int) bool { return b.timeAt(i) >= ms })
}

// FirstTime and LastTime return the times bounding the held data; ok=false
// when the buffer is empty.
func (b *Buffer) FirstTime() (int64, bool) {
	if b.n == 0 {
		return 0, false
	}
	return b.timeAt(0), true
}

func (b *Buffer) LastTime() (int64, bool) {
	if b.n == 0 {
		return 0, false
	}
	return b.timeAt(b.n - 1), true
}

// append stores one record tuple, growing capacity within the configured
// bounds.
func (b *Buffer) append(lat, lon int32, ms int64, value int32) {
	need := (b.n + 1) * tupleWords
	if need > cap(b.data) {
		curCap := cap(b.data) / tupleWords
		growBy := curCap
		if growBy < minGrowRecords {
			growBy = minGrowRecords
		} else if growBy > maxGrowRecords {
			growBy = maxGrowRecords
		}
		grown := make([]int32, b.n*tupleWords, (curCap+growBy)*tupleWords)
		copy(grown, b.data[:b.n*tupleWords])
		b.data = grown
	}
	b.data = b.data[:need]
	base := b.n * tupleWords
	b.data[base+offLat] = lat
	b.data[base+offLon] = lon
	b.data[base+offTimeHi] = int32(ms >> 32)
	b.data[base+offTimeLo] = int32(uint32(ms))
	b.data[base+offValue] = value
	b.n++
}

// trim releases surplus capacity after a batch, keeping a small margin.
func (b *Buffer) trim() {
	if cap(b.data) > (b.n+trimMarginRecords)*tupleWords {
		kept := make([]int32, b.n*tupleWords, (b.n+trimMarginRecords)*tupleWords)
		copy(kept, b.data)
		b.data = kept
	}
}

// valueOf extracts the corrected height anomaly in millimeters:
// height + barometric correction - mean height. ok=false when any involved
// codeword is out of range or the record is over land.
func valueOf(src corssh.RecordSource) (int32, bool) {
	if src.Field(corssh.FieldLongitude) == corssh.LandLongitude {
		return 0, false
	}
	for _, f := range [...]corssh.Field{
		corssh.FieldLatitude, corssh.FieldLongitude,
		corssh.FieldHeight, corssh.FieldMeanHeight, corssh.FieldBaroCorrection,
	} {
		if math.IsNaN(src.Value(f)) {
			return 0, false
		}
	}
	h := int64(src.Field(corssh.FieldHeight)) +
		int64(src.Field(corssh.FieldBaroCorrection)) -
		int64(src.Field(corssh.FieldMeanHeight))
	return int32(h), true
}

// SetTimeRange replaces the buffer contents with records in [startMs,endMs],
// reusing the already-held overlapping suffix when startMs falls within it,
// and otherwise repositioning the source. Loading stops at the first record
// past endMs, after maxRecords records (when maxRecords > 0), or when the
// source is exhausted. Records over land, with out-of-range codewords, or
// outside the buffer's region are discarded during ingestion.
func (b *Buffer) SetTimeRange(startMs, endMs int64, maxRecords int) (LoadStatus, error) {
	b.modCount++
	b.gridValid = false

	reused := false
	if b.n > 0 && b.positioned {
		first := b.timeAt(0)
		last := b.timeAt(b.n - 1)
		if startMs >= first && last >= startMs {
			i := b.Search(startMs)
			copy(b.data, b.data[i*tupleWords:b.n*tupleWords])
			b.n -= i
			b.data = b.data[:b.n*tupleWords]
			reused = true
		}
	}
	if !reused {
		b.n = 0
		b.data = b.data[:0]
		b.positioned = false
		if err := b.src.Seek(startMs); err != nil {
			var nf *corssh.SeekNotFoundError
			if errors.As(err, &nf) {
				b.trim()
				return LoadExhausted, nil
			}
			return 0, err
		}
		b.positioned = true
	}

	status := LoadExhausted
	for {
		if maxRecords > 0 && b.n >= maxRecords {
			status = LoadRecordLimit
			break
		}
		ok, err := b.src.NextRecord()
		if err != nil {
			return 0, err
		}
		if !ok {
			status = LoadExhausted
			break
		}
		ms, valid := b.src.Date()
		if !valid {
			continue
		}
		if b.n > 0 {
			if prev := b.timeAt(b.n - 1); ms < prev {
				return 0, &corssh.OrderingError{Prev: prev, Next: ms}
			}
		}
		past := ms > endMs
		if v, keep := valueOf(b.src); keep {
			lat := b.src.Field(corssh.FieldLatitude)
			lon := b.src.Field(corssh.FieldLongitude)
			if b.region.Contains(lat, lon) {
				// A record past the end time is still stored: it has been
				// consumed from the source and the next window's reuse path
				// must find it in the buffer.
				b.append(lat, lon, ms, v)
			} else {
				b.skipped++
			}
		} else {
			b.skipped++
		}
		if past {
			status = LoadTimeLimit
			break
		}
	}
	b.trim()
	return status, nil
}
