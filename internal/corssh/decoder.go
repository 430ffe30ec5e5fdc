package corssh

import (
	"fmt"
	"io"
	"os"
)

// defaultRecordIntervalMs is the initial inter-record spacing assumed by the
// date seek before any probe has measured the real cadence. Altimeter data
// records arrive at roughly one per second.
const defaultRecordIntervalMs = 1000

// PredecessorIter yields the paths of files that precede the current one in
// time, most recent first. It returns ok=false when no earlier file remains.
// The decoder uses it to fetch a true cross-file predecessor record when a
// seek lands on the very first record of its file.
type PredecessorIter func() (path string, ok bool)

// FileDecoder reads one CORSSH file as a RecordSource.
type FileDecoder struct {
	path string
	f    *os.File
	size int64

	// Iteration state. pos is the next 32-byte slot to read; remaining is
	// the number of data records left in the current pass, so remaining==0
	// means pos addresses a pass header (or end of file).
	pos       int64
	remaining int32
	passNum   int32
	cur       Record
	blank     bool
	lastMs    int64

	prev PredecessorIter

	scanned bool
	startMs int64
	endMs   int64
	passes  int
	records int64

	buf [RecordSize]byte
}

// OpenFile opens a CORSSH file for reading. The current record starts blank.
func OpenFile(path string) (*FileDecoder, error) {
	return OpenFileWithPredecessors(path, nil)
}

// OpenFileWithPredecessors opens a CORSSH file and registers an iterator over
// earlier files, consulted only when a seek needs a predecessor that lives in
// a prior file.
func OpenFileWithPredecessors(path string, prev PredecessorIter) (*FileDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corssh: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("corssh: stat %s: %w", path, err)
	}
	return &FileDecoder{
		path:  path,
		f:     f,
		size:  st.Size(),
		blank: true,
		prev:  prev,
	}, nil
}

// Path returns the path of the underlying file.
func (d *FileDecoder) Path() string { return d.path }

// Close releases the underlying file handle.
func (d *FileDecoder) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// readSlot reads the 32-byte record at the given slot index. A short read is
// a truncation error.
func (d *FileDecoder) readSlot(slot int64) (Record, error) {
	if d.f == nil {
		return Record{}, ErrClosed
	}
	n, err := d.f.ReadAt(d.buf[:], slot*RecordSize)
	if n < RecordSize {
		if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
			return Record{}, fmt.Errorf("%w at offset %d in %s", ErrTruncated, slot*RecordSize, d.path)
		}
		return Record{}, fmt.Errorf("corssh: read %s: %w", d.path, err)
	}
	return DecodeRecord(d.buf[:]), nil
}

func (d *FileDecoder) readTime(slot int64) (int64, error) {
	r, err := d.readSlot(slot)
	if err != nil {
		return 0, err
	}
	return r.TimeMs(), nil
}

// atEOF reports whether slot is past the last complete or partial record.
func (d *FileDecoder) atEOF(slot int64) bool {
	return slot*RecordSize >= d.size
}

// NextRecord advances to the next data record, skipping pass headers. It
// returns false on clean end of input and an error on truncated input, a
// negative pass count, or a record whose time precedes its predecessor.
func (d *FileDecoder) NextRecord() (bool, error) {
	if d.f == nil {
		return false, ErrClosed
	}
	for {
		if d.atEOF(d.pos) {
			if d.remaining > 0 {
				return false, fmt.Errorf("%w: pass %d in %s promises %d more records",
					ErrTruncated, d.passNum, d.path, d.remaining)
			}
			return false, nil
		}
		if d.remaining == 0 {
			h, err := d.readSlot(d.pos)
			if err != nil {
				return false, err
			}
			count := h.Field(FieldRecordCount)
			if count < 0 {
				return false, fmt.Errorf("%w: pass %d in %s", ErrInvalidCount, h.Field(FieldPassNumber), d.path)
			}
			d.passNum = h.Field(FieldPassNumber)
			d.remaining = count
			d.pos++
			continue
		}
		r, err := d.readSlot(d.pos)
		if err != nil {
			return false, err
		}
		d.pos++
		d.remaining--
		ms := r.TimeMs()
		if d.lastMs != 0 && ms < d.lastMs {
			return false, &OrderingError{Prev: d.lastMs, Next: ms, Path: d.path}
		}
		d.cur = r
		d.blank = false
		d.lastMs = ms
		return true, nil
	}
}

// IsBlank reports whether the current record is the blank sentinel.
func (d *FileDecoder) IsBlank() bool { return d.blank }

// Field returns the current record's raw codeword.
func (d *FileDecoder) Field(f Field) int32 { return d.cur.Field(f) }

// Value returns the current record's field in physical units.
func (d *FileDecoder) Value(f Field) float64 { return d.cur.Value(f) }

// PassNumber returns the pass number of the current record's pass.
func (d *FileDecoder) PassNumber() int32 { return d.passNum }

// Date returns the current record's time in milliseconds since the Unix
// epoch, or ok=false for the blank record.
func (d *FileDecoder) Date() (int64, bool) {
	if d.blank {
		return 0, false
	}
	return d.cur.TimeMs(), true
}

// Current returns the current record, ok=false when it is blank.
func (d *FileDecoder) Current() (Record, bool) {
	return d.cur, !d.blank
}

// scan walks the pass headers once, counting passes and records and reading
// the first and last data record times. Results are memoized.
func (d *FileDecoder) scan() error {
	if d.scanned {
		return nil
	}
	var (
		pos      int64
		first    bool
		lastSlot int64 = -1
	)
	for !d.atEOF(pos) {
		h, err := d.readSlot(pos)
		if err != nil {
			return err
		}
		count := h.Field(FieldRecordCount)
		if count < 0 {
			return fmt.Errorf("%w: pass %d in %s", ErrInvalidCount, h.Field(FieldPassNumber), d.path)
		}
		d.passes++
		if count > 0 {
			if !first {
				t, err := d.readTime(pos + 1)
				if err != nil {
					return err
				}
				d.startMs = t
				first = true
			}
			lastSlot = pos + int64(count)
			d.records += int64(count)
		}
		pos += int64(count) + 1
		if pos*RecordSize > d.size {
			return fmt.Errorf("%w: pass at offset %d in %s extends past end of file",
				ErrTruncated, (pos-int64(count)-1)*RecordSize, d.path)
		}
	}
	if lastSlot >= 0 {
		t, err := d.readTime(lastSlot)
		if err != nil {
			return err
		}
		d.endMs = t
	}
	d.scanned = true
	return nil
}

// StartTime returns the time of the first data record, scanning on first use.
func (d *FileDecoder) StartTime() (int64, error) {
	if err := d.scan(); err != nil {
		return 0, err
	}
	return d.startMs, nil
}

// EndTime returns the time of the last data record.
func (d *FileDecoder) EndTime() (int64, error) {
	if err := d.scan(); err != nil {
		return 0, err
	}
	return d.endMs, nil
}

// PassCount returns the number of passes in the file.
func (d *FileDecoder) PassCount() (int, error) {
	if err := d.scan(); err != nil {
		return 0, err
	}
	return d.passes, nil
}

// RecordCount returns the number of data records in the file.
func (d *FileDecoder) RecordCount() (int64, error) {
	if err := d.scan(); err != nil {
		return 0, err
	}
	return d.records, nil
}

// lastRecord returns the final data record of the file, ok=false when the
// file holds no data records.
func (d *FileDecoder) lastRecord() (Record, bool, error) {
	if err := d.scan(); err != nil {
		return Record{}, false, err
	}
	if d.records == 0 {
		return Record{}, false, nil
	}
	var pos, lastSlot int64
	lastSlot = -1
	for !d.atEOF(pos) {
		h, err := d.readSlot(pos)
		if err != nil {
			return Record{}, false, err
		}
		count := h.Field(FieldRecordCount)
		if count > 0 {
			lastSlot = pos + int64(count)
		}
		pos += int64(count) + 1
	}
	r, err := d.readSlot(lastSlot)
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Seek repositions the decoder so that the current record is the last one
// strictly before ms and the next NextRecord call yields the first record at
// or after ms. When the target precedes the whole file, the predecessor is
// fetched from the registered earlier files, or left blank.
func (d *FileDecoder) Seek(ms int64) error {
	if d.f == nil {
		return ErrClosed
	}
	d.pos = 0
	d.remaining = 0
	d.cur = Record{}
	d.blank = true
	d.lastMs = 0

	var (
		hpos int64
		pred int64 = -1 // slot of the latest record known to precede ms
	)
	for {
		if d.atEOF(hpos) {
			return d.seekNotFound(ms, pred, hpos)
		}
		h, err := d.readSlot(hpos)
		if err != nil {
			return err
		}
		count := h.Field(FieldRecordCount)
		if count < 0 {
			return fmt.Errorf("%w: pass %d in %s", ErrInvalidCount, h.Field(FieldPassNumber), d.path)
		}
		next := hpos + 1 + int64(count)
		if next*RecordSize > d.size {
			return fmt.Errorf("%w: pass %d in %s extends past end of file", ErrTruncated, h.Field(FieldPassNumber), d.path)
		}
		if !d.atEOF(next) {
			// While the target is at or after the next pass's start, skip
			// whole passes without probing their records.
			nh, err := d.readSlot(next)
			if err != nil {
				return err
			}
			if ms >= nh.TimeMs() {
				if count > 0 {
					pred = next - 1
				}
				hpos = next
				continue
			}
		}
		if count == 0 {
			hpos = next
			continue
		}
		idx, ok, err := d.searchPass(hpos+1, int64(count), h.TimeMs(), ms)
		if err != nil {
			return err
		}
		if !ok {
			// Every record of this pass precedes ms; the successor, if any,
			// lives in a later pass.
			pred = next - 1
			hpos = next
			continue
		}
		target := hpos + 1 + idx
		if idx > 0 {
			pred = target - 1
		}
		d.pos = target
		d.remaining = int32(int64(count) - idx)
		d.passNum = h.Field(FieldPassNumber)
		return d.loadPredecessor(pred)
	}
}

// seekNotFound finishes a failed seek: the stream is left at the final
// record and the error carries the latest observed date.
func (d *FileDecoder) seekNotFound(ms int64, pred, hpos int64) error {
	var last int64
	if pred >= 0 {
		r, err := d.readSlot(pred)
		if err != nil {
			return err
		}
		d.cur = r
		d.blank = false
		last = r.TimeMs()
		d.lastMs = last
	}
	d.pos = hpos
	d.remaining = 0
	return &SeekNotFoundError{Want: ms, Last: last}
}

// loadPredecessor populates the current record from the given slot, or from
// the most recent earlier file when the target is the first record of this
// file, or leaves it blank.
func (d *FileDecoder) loadPredecessor(pred int64) error {
	if pred >= 0 {
		r, err := d.readSlot(pred)
		if err != nil {
			return err
		}
		d.cur = r
		d.blank = false
		d.lastMs = r.TimeMs()
		return nil
	}
	if d.prev != nil {
		for {
			path, ok := d.prev()
			if !ok {
				break
			}
			p, err := OpenFile(path)
			if err != nil {
				return err
			}
			r, found, err := p.lastRecord()
			cerr := p.Close()
			if err != nil {
				return err
			}
			if cerr != nil {
				return cerr
			}
			if found {
				d.cur = r
				d.blank = false
				d.lastMs = r.TimeMs()
				return nil
			}
		}
	}
	d.cur = Record{}
	d.blank = true
	d.lastMs = 0
	return nil
}

// searchPass locates the smallest index in [0,count) whose record time is at
// or after ms, among the data records starting at slot base. It guesses the
// offset assuming uniform record spacing, refines the spacing estimate from
// the two most recent probes, and clamps every guess to a [lo,hi] bound that
// narrows monotonically, so it never degrades past a plain binary search.
func (d *FileDecoder) searchPass(base, count, passStartMs, ms int64) (int64, bool, error) {
	lo, hi := int64(0), count-1
	interval := int64(defaultRecordIntervalMs)

	guess := (ms - passStartMs) / interval
	if guess < lo {
		guess = lo
	} else if guess > hi {
		guess = hi
	}

	prevIdx := int64(-1)
	var prevMs int64
	for lo <= hi {
		t, err := d.readTime(base + guess)
		if err != nil {
			return 0, false, err
		}
		if prevIdx >= 0 && guess != prevIdx {
			iv := (t - prevMs) / (guess - prevIdx)
			if iv < 1 {
				iv = 1
			}
			interval = iv
		}
		prevIdx, prevMs = guess, t

		if t >= ms {
			hi = guess - 1
		} else {
			lo = guess + 1
		}
		if lo > hi {
			break
		}
		guess += (ms - t) / interval
		if guess < lo {
			guess = lo
		} else if guess > hi {
			guess = hi
		}
	}
	if lo >= count {
		return 0, false, nil
	}
	return lo, true, nil
}
