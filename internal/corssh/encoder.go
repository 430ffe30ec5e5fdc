package corssh

import (
	"bufio"
	"fmt"
	"os"
)

// Writer emits CORSSH files pass by pass. Callers open a pass with a record
// count, write exactly that many records, and close the writer when done.
type Writer struct {
	f         *os.File
	w         *bufio.Writer
	path      string
	remaining int32
	buf       [RecordSize]byte
}

// NewWriter creates (or truncates) a CORSSH file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("corssh: create %s: %w", path, err)
	}
	return &Writer{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// BeginPass writes a pass header. start is the time of the first record the
// pass will carry.
func (w *Writer) BeginPass(passNumber, count int32, startDay, startSec, startUsec int32) error {
	if w.remaining > 0 {
		return fmt.Errorf("corssh: pass still has %d unwritten records in %s", w.remaining, w.path)
	}
	var h Record
	h[FieldPassNumber] = passNumber
	h[FieldRecordCount] = count
	h[FieldDay] = startDay
	h[FieldSecond] = startSec
	h[FieldMicrosecond] = startUsec
	h.Encode(w.buf[:])
	if _, err := w.w.Write(w.buf[:]); err != nil {
		return fmt.Errorf("corssh: write %s: %w", w.path, err)
	}
	w.remaining = count
	return nil
}

// WriteRecord writes one data record into the open pass.
func (w *Writer) WriteRecord(r Record) error {
	if w.remaining <= 0 {
		return fmt.Errorf("corssh: record written outside a pass in %s", w.path)
	}
	r.Encode(w.buf[:])
	if _, err := w.w.Write(w.buf[:]); err != nil {
		return fmt.Errorf("corssh: write %s: %w", w.path, err)
	}
	w.remaining--
	return nil
}

// Close flushes and closes the file. Closing with an unfinished pass is an
// error, since readers would see it as truncation.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	ferr := w.w.Flush()
	cerr := w.f.Close()
	w.f = nil
	if w.remaining > 0 {
		return fmt.Errorf("corssh: closed with %d unwritten records in %s", w.remaining, w.path)
	}
	if ferr != nil {
		return fmt.Errorf("corssh: flush %s: %w", w.path, ferr)
	}
	if cerr != nil {
		return fmt.Errorf("corssh: close %s: %w", w.path, cerr)
	}
	return nil
}
