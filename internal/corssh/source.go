package corssh

// RecordSource is a chronological stream of CORSSH data records. After
// construction the current record is blank; NextRecord advances past pass
// headers transparently and returns false only on exhaustion. Seek
// repositions so that the current record is the last one strictly before the
// given time (blank when no predecessor exists) and the next NextRecord call
// yields the first record at or after it.
//
// Implementations are not safe for concurrent use.
type RecordSource interface {
	// Seek positions the stream relative to the given time in milliseconds.
	// It returns a *SeekNotFoundError when no record at or after the time
	// exists, with the stream left at its final record.
	Seek(ms int64) error

	// NextRecord advances to the next data record. It returns false with a
	// nil error on end of input.
	NextRecord() (bool, error)

	// IsBlank reports whether the current record is the blank sentinel.
	IsBlank() bool

	// Field returns the current record's raw codeword for f.
	Field(f Field) int32

	// Value returns the current record's field in physical units, NaN when
	// the codeword is outside its documented range.
	Value(f Field) float64

	// Date returns the current record's time in milliseconds. ok is false
	// for the blank record.
	Date() (ms int64, ok bool)

	// StartTime and EndTime return the times of the first and last data
	// records. They may require a full scan; the result is cached.
	StartTime() (int64, error)
	EndTime() (int64, error)

	// PassCount and RecordCount return totals over the whole source,
	// scanning and caching on first use.
	PassCount() (int, error)
	RecordCount() (int64, error)

	// Close releases any underlying file handles.
	Close() error
}
