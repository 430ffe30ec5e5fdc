package window

import (
	"errors"
	"sort"
)

// ErrConcurrentModification is returned by cursor reads after the owning
// buffer has been mutated.
var ErrConcurrentModification = errors.New("window: buffer modified since cursor creation")

// TimeRange restricts a query to [StartMs, EndMs], inclusive.
type TimeRange struct {
	StartMs int64
	EndMs   int64
}

// Cursor iterates the result of a spatial query. Results are not
// necessarily in time order. Every read revalidates the owning buffer's
// modification counter and fails rather than returning stale data.
type Cursor struct {
	buf  *Buffer
	mod  uint64
	offs []int32
	pos  int
}

// Count returns the number of matching records.
func (c *Cursor) Count() (int, error) {
	if c.mod != c.buf.modCount {
		return 0, ErrConcurrentModification
	}
	return len(c.offs), nil
}

// Next returns the next matching point. ok=false when the cursor is
// exhausted.
func (c *Cursor) Next() (p Point, ok bool, err error) {
	if c.mod != c.buf.modCount {
		return Point{}, false, ErrConcurrentModification
	}
	if c.pos >= len(c.offs) {
		return Point{}, false, nil
	}
	p = c.buf.Point(int(c.offs[c.pos]))
	c.pos++
	return p, true, nil
}

// PointsInside collects the buffered records inside shape, optionally
// restricted to a time range. It scans only the grid cells overlapping the
// shape's bounding box; within each cell it binary-searches to the first
// offset at or after the range start (cell lists are in record order, which
// is time order) and applies the exact containment test from there.
func (b *Buffer) PointsInside(shape Shape, tr *TimeRange) *Cursor {
	if !b.gridValid {
		b.buildIndex()
	}
	bounds := b.region.Bounds()
	qb := shape.Bounds().Intersect(bounds)

	var offs []int32
	if qb.MinLat <= qb.MaxLat && qb.MinLon <= qb.MaxLon {
		cx0, cy0 := b.cellOf(bounds, qb.MinLat, qb.MinLon)
		cx1, cy1 := b.cellOf(bounds, qb.MaxLat, qb.MaxLon)
		for cy := cy0; cy <= cy1; cy++ {
			for cx := cx0; cx <= cx1; cx++ {
				cell := b.cells[cy*gridDim+cx]
				k := 0
				if tr != nil {
					k = sort.Search(len(cell), func(i int) bool {
						return b.timeAt(int(cell[i])) >= tr.StartMs
					})
				}
				for ; k < len(cell); k++ {
					off := int(cell[k])
					if tr != nil && b.timeAt(off) > tr.EndMs {
						break
					}
					base := off * tupleWords
					if shape.Contains(b.data[base+offLat], b.data[base+offLon]) {
						offs = append(offs, cell[k])
					}
				}
			}
		}
	}
	return &Cursor{buf: b, mod: b.modCount, offs: offs}
}
