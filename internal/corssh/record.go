package corssh

import (
	"encoding/binary"
	"math"
	"time"
)

// CORSSH files are a sequence of passes. Each pass is one header record
// followed by exactly RecordCount data records. Header and data records share
// the same fixed 32-byte layout: 8 big-endian signed 32-bit words.
//
// Header words:
//   0: pass number
//   1: record count for the pass
//   2: day index of the pass start
//   3: second of day
//   4: microsecond
//   5-7: unused
//
// Data words:
//   0: latitude (microdegrees)
//   1: longitude (microdegrees, 0..360e6)
//   2: day index (day 1 = 1985-01-01 UTC)
//   3: second of day
//   4: microsecond
//   5: height (mm)
//   6: mean height (mm)
//   7: barometric correction (mm)

// Record and field size constants.
const (
	RecordWords = 8
	RecordSize  = RecordWords * 4
)

// DataFileExt is the extension recognized by directory discovery.
const DataFileExt = ".corssh"

// LandLongitude is the sentinel longitude codeword marking an over-land
// sample. Land records are delivered by raw iteration but skipped during
// buffered ingestion.
const LandLongitude int32 = math.MaxInt32

// Field identifies one word of a data record.
type Field int

const (
	FieldLatitude Field = iota
	FieldLongitude
	FieldDay
	FieldSecond
	FieldMicrosecond
	FieldHeight
	FieldMeanHeight
	FieldBaroCorrection
)

// Header field aliases: a pass header reuses the first word positions.
const (
	FieldPassNumber  = FieldLatitude
	FieldRecordCount = FieldLongitude
)

// Documented physical codeword ranges. A codeword outside its range decodes
// to NaN rather than an error.
const (
	MinLatitude  int32 = -90_000_000
	MaxLatitude  int32 = 90_000_000
	MinLongitude int32 = 0
	MaxLongitude int32 = 360_000_000
	MinHeight    int32 = -500_000
	MaxHeight    int32 = 500_000
	MinBaroCorr  int32 = -5_000
	MaxBaroCorr  int32 = 5_000
)

// epochMs is day 1 of the CORSSH day index: 1985-01-01T00:00:00Z,
// as milliseconds since the Unix epoch.
var epochMs = time.Date(1985, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

const millisPerDay = 86_400_000

// TimeMs converts a (day, second, microsecond) triple to milliseconds since
// the Unix epoch. Microseconds round to the nearest millisecond.
func TimeMs(day, sec, usec int32) int64 {
	return epochMs + int64(day-1)*millisPerDay + int64(sec)*1000 + (int64(usec)+500)/1000
}

// Record is one decoded 32-byte CORSSH record. A zero Record is the blank
// sentinel used for "no predecessor available".
type Record [RecordWords]int32

// DecodeRecord interprets a 32-byte buffer as a record.
func DecodeRecord(buf []byte) Record {
	var r Record
	for i := 0; i < RecordWords; i++ {
		r[i] = int32(binary.BigEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return r
}

// Encode writes the record into a 32-byte buffer.
func (r Record) Encode(buf []byte) {
	for i := 0; i < RecordWords; i++ {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(r[i]))
	}
}

// Field returns the raw codeword for the given field.
func (r Record) Field(f Field) int32 { return r[f] }

// TimeMs returns the record timestamp in milliseconds since the Unix epoch.
func (r Record) TimeMs() int64 {
	return TimeMs(r[FieldDay], r[FieldSecond], r[FieldMicrosecond])
}

// IsBlank reports whether the record is the all-zero blank sentinel.
func (r Record) IsBlank() bool {
	return r == Record{}
}

// Value returns the field in physical units: degrees for latitude and
// longitude, days/seconds/microseconds for the time parts, millimeters for
// heights and the barometric correction. Codewords outside the documented
// range yield NaN.
func (r Record) Value(f Field) float64 {
	w := r[f]
	switch f {
	case FieldLatitude:
		if w < MinLatitude || w > MaxLatitude {
			return math.NaN()
		}
		return float64(w) * 1e-6
	case FieldLongitude:
		if w < MinLongitude || w > MaxLongitude {
			return math.NaN()
		}
		return float64(w) * 1e-6
	case FieldDay:
		if w < 1 {
			return math.NaN()
		}
		return float64(w)
	case FieldSecond:
		if w < 0 || w > 86_399 {
			return math.NaN()
		}
		return float64(w)
	case FieldMicrosecond:
		if w < 0 || w > 999_999 {
			return math.NaN()
		}
		return float64(w)
	case FieldHeight, FieldMeanHeight:
		if w < MinHeight || w > MaxHeight {
			return math.NaN()
		}
		return float64(w)
	case FieldBaroCorrection:
		if w < MinBaroCorr || w > MaxBaroCorr {
			return math.NaN()
		}
		return float64(w)
	}
	return math.NaN()
}
