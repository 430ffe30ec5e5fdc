package window

import "fmt"

// buildIndex partitions the region's bounding box into a gridDim x gridDim
// grid and assigns every buffered record to its containing cell, clamped to
// the valid cell range. Offsets are appended in ascending record order, so
// each cell list is sorted and duplicate-free by construction. The index is
// rebuilt lazily after any mutation.
func (b *Buffer) buildIndex() {
	cells := make([][]int32, gridDim*gridDim)
	bounds := b.region.Bounds()
	for i := 0; i < b.n; i++ {
		base := i * tupleWords
		cx, cy := b.cellOf(bounds, b.data[base+offLat], b.data[base+offLon])
		c := cy*gridDim + cx
		cells[c] = append(cells[c], int32(i))
	}
	b.cells = cells
	b.gridValid = true
}

// cellOf maps a coordinate to grid cell indices, clamped into range.
func (b *Buffer) cellOf(bounds Rect, lat, lon int32) (cx, cy int) {
	latSpan := int64(bounds.MaxLat) - int64(bounds.MinLat)
	lonSpan := int64(bounds.MaxLon) - int64(bounds.MinLon)
	if latSpan > 0 {
		cy = int((int64(lat) - int64(bounds.MinLat)) * gridDim / latSpan)
	}
	if lonSpan > 0 {
		cx = int((int64(lon) - int64(bounds.MinLon)) * gridDim / lonSpan)
	}
	return clampCell(cx), clampCell(cy)
}

func clampCell(c int) int {
	if c < 0 {
		return 0
	}
	if c >= gridDim {
		return gridDim - 1
	}
	return c
}

// CheckIndex validates the debug invariant that the grid holds exactly one
// entry per buffered record. Intended for tests.
func (b *Buffer) CheckIndex() error {
	if !b.gridValid {
		b.buildIndex()
	}
	total := 0
	for _, cell := range b.cells {
		total += len(cell)
	}
	if total != b.n {
		return fmt.Errorf("window: grid index holds %d entries for %d records", total, b.n)
	}
	return nil
}
