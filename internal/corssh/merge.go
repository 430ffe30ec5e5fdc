package corssh

import "errors"

// MergeSource combines exactly two child sources into one stream ordered by
// time. Trees of merges handle more than two children; see NewMergeTree.
//
// The children are kept one record ahead: at any time each child's current
// record is either the record most recently delivered by the merge (on the
// selected child) or the next candidate (on the other). Ties break toward
// the left child.
type MergeSource struct {
	left, right RecordSource

	selected  RecordSource
	leftDone  bool
	rightDone bool
	primed    bool
}

// NewMergeSource merges two chronological sources.
func NewMergeSource(left, right RecordSource) *MergeSource {
	m := &MergeSource{left: left, right: right}
	m.selected = left
	return m
}

// NewMergeTree composes any number of sources into a balanced binary tree of
// merges. A single source is returned unwrapped.
func NewMergeTree(sources ...RecordSource) RecordSource {
	switch len(sources) {
	case 0:
		return nil
	case 1:
		return sources[0]
	}
	mid := len(sources) / 2
	return NewMergeSource(NewMergeTree(sources[:mid]...), NewMergeTree(sources[mid:]...))
}

// candidate returns the time of a child's current record, ok=false when the
// child is exhausted or blank.
func (m *MergeSource) candidate(src RecordSource, done bool) (int64, bool) {
	if done {
		return 0, false
	}
	return src.Date()
}

// reselect points the merge at whichever child holds the earlier candidate.
func (m *MergeSource) reselect() bool {
	lt, lok := m.candidate(m.left, m.leftDone)
	rt, rok := m.candidate(m.right, m.rightDone)
	switch {
	case lok && rok:
		if rt < lt {
			m.selected = m.right
		} else {
			m.selected = m.left
		}
	case lok:
		m.selected = m.left
	case rok:
		m.selected = m.right
	default:
		return false
	}
	return true
}

// advance moves one child forward, recording exhaustion.
func (m *MergeSource) advance(src RecordSource) error {
	ok, err := src.NextRecord()
	if err != nil {
		return err
	}
	if !ok {
		if src == m.left {
			m.leftDone = true
		} else {
			m.rightDone = true
		}
	}
	return nil
}

// NextRecord advances the child holding the earlier candidate timestamp and
// reselects. It returns false when both children are exhausted.
func (m *MergeSource) NextRecord() (bool, error) {
	if !m.primed {
		if err := m.advance(m.left); err != nil {
			return false, err
		}
		if err := m.advance(m.right); err != nil {
			return false, err
		}
		m.primed = true
	} else {
		sel := m.selected
		var done bool
		if sel == m.left {
			done = m.leftDone
		} else {
			done = m.rightDone
		}
		if !done {
			if err := m.advance(sel); err != nil {
				return false, err
			}
		}
	}
	return m.reselect(), nil
}

// Seek seeks both children, selects the child holding the later predecessor,
// and primes the other with its first record at or after ms. When neither
// child has a record at or after ms, the child with the earlier start time
// is selected instead, so the current record still satisfies the predecessor
// contract, and a not-found error is returned with the latest observed date.
func (m *MergeSource) Seek(ms int64) error {
	m.leftDone = false
	m.rightDone = false

	var leftNF, rightNF *SeekNotFoundError
	if err := m.left.Seek(ms); err != nil {
		if !errors.As(err, &leftNF) {
			return err
		}
		m.leftDone = true
	}
	if err := m.right.Seek(ms); err != nil {
		if !errors.As(err, &rightNF) {
			return err
		}
		m.rightDone = true
	}

	if leftNF != nil && rightNF != nil {
		ls, err := m.left.StartTime()
		if err != nil {
			return err
		}
		rs, err := m.right.StartTime()
		if err != nil {
			return err
		}
		if ls <= rs {
			m.selected = m.left
		} else {
			m.selected = m.right
		}
		m.primed = true
		last := leftNF.Last
		if rightNF.Last > last {
			last = rightNF.Last
		}
		return &SeekNotFoundError{Want: ms, Last: last}
	}

	// Both children now hold their predecessor of ms (or their final record
	// for an exhausted child). The merged predecessor is the later one.
	lt, lok := m.left.Date()
	rt, rok := m.right.Date()
	switch {
	case lok && rok:
		if rt > lt {
			m.selected = m.right
		} else {
			m.selected = m.left
		}
	case rok:
		m.selected = m.right
	default:
		m.selected = m.left
	}

	// Prime the other child so its first record at or after ms is pending.
	other := m.right
	otherDone := m.rightDone
	if m.selected == m.right {
		other, otherDone = m.left, m.leftDone
	}
	if !otherDone {
		if err := m.advance(other); err != nil {
			return err
		}
	}
	m.primed = true
	return nil
}

// IsBlank reports whether the current record is the blank sentinel.
func (m *MergeSource) IsBlank() bool { return m.selected.IsBlank() }

// Field returns the current record's raw codeword from the selected child.
func (m *MergeSource) Field(f Field) int32 { return m.selected.Field(f) }

// Value returns the current record's field in physical units.
func (m *MergeSource) Value(f Field) float64 { return m.selected.Value(f) }

// Date returns the current record's time, ok=false for the blank record.
func (m *MergeSource) Date() (int64, bool) { return m.selected.Date() }

// StartTime returns the earlier of the children's start times. A child
// holding no records is ignored rather than treated as starting at time
// zero, since zero is a valid record time.
func (m *MergeSource) StartTime() (int64, error) {
	ls, err := m.left.StartTime()
	if err != nil {
		return 0, err
	}
	rs, err := m.right.StartTime()
	if err != nil {
		return 0, err
	}
	ln, err := m.left.RecordCount()
	if err != nil {
		return 0, err
	}
	rn, err := m.right.RecordCount()
	if err != nil {
		return 0, err
	}
	switch {
	case ln == 0:
		return rs, nil
	case rn == 0:
		return ls, nil
	case rs < ls:
		return rs, nil
	}
	return ls, nil
}

// EndTime returns the later of the children's end times.
func (m *MergeSource) EndTime() (int64, error) {
	le, err := m.left.EndTime()
	if err != nil {
		return 0, err
	}
	re, err := m.right.EndTime()
	if err != nil {
		return 0, err
	}
	if re > le {
		return re, nil
	}
	return le, nil
}

// PassCount returns the total pass count across both children.
func (m *MergeSource) PassCount() (int, error) {
	ln, err := m.left.PassCount()
	if err != nil {
		return 0, err
	}
	rn, err := m.right.PassCount()
	if err != nil {
		return 0, err
	}
	return ln + rn, nil
}

// RecordCount returns the total record count across both children.
func (m *MergeSource) RecordCount() (int64, error) {
	ln, err := m.left.RecordCount()
	if err != nil {
		return 0, err
	}
	rn, err := m.right.RecordCount()
	if err != nil {
		return 0, err
	}
	return ln + rn, nil
}

// Close closes both children, returning the first error.
func (m *MergeSource) Close() error {
	lerr := m.left.Close()
	rerr := m.right.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}
