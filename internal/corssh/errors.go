package corssh

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for malformed input.
var (
	// ErrTruncated means a record began but the file ended before its 32
	// bytes were read.
	ErrTruncated = errors.New("corssh: truncated record")

	// ErrInvalidCount means a pass header carried a negative record count.
	ErrInvalidCount = errors.New("corssh: negative record count in pass header")

	// ErrClosed means an operation was attempted on a closed source.
	ErrClosed = errors.New("corssh: source is closed")
)

// SeekNotFoundError reports a seek past the end of all available data. Last
// is the latest record time observed while searching, in milliseconds, or
// zero when the source held no records at all.
type SeekNotFoundError struct {
	Want int64
	Last int64
}

func (e *SeekNotFoundError) Error() string {
	return fmt.Sprintf("corssh: no record at or after %s (last record at %s)",
		formatMs(e.Want), formatMs(e.Last))
}

// OrderingError reports a record whose timestamp precedes its predecessor.
type OrderingError struct {
	Prev int64
	Next int64
	Path string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("corssh: record order violation in %s: %s followed by %s",
		e.Path, formatMs(e.Prev), formatMs(e.Next))
}

// OverlapError reports two files covering intersecting time ranges, detected
// at directory source construction.
type OverlapError struct {
	PathA, PathB string
	StartB       int64
	EndA         int64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("corssh: overlapping files: %s ends %s after %s starts %s",
		e.PathA, formatMs(e.EndA), e.PathB, formatMs(e.StartB))
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "none"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
