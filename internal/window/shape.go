package window

// Shape is a geographic region over fixed-point coordinates: latitude in
// microdegrees, longitude in microdegrees east of Greenwich (0..360e6).
type Shape interface {
	Contains(latMicro, lonMicro int32) bool
	Bounds() Rect
}

// Rect is an axis-aligned latitude/longitude box, inclusive on all edges.
type Rect struct {
	MinLat, MaxLat int32
	MinLon, MaxLon int32
}

// Contains reports whether the point lies inside the box.
func (r Rect) Contains(latMicro, lonMicro int32) bool {
	return latMicro >= r.MinLat && latMicro <= r.MaxLat &&
		lonMicro >= r.MinLon && lonMicro <= r.MaxLon
}

// Bounds returns the box itself.
func (r Rect) Bounds() Rect { return r }

// Intersect clips r to o.
func (r Rect) Intersect(o Rect) Rect {
	out := r
	if o.MinLat > out.MinLat {
		out.MinLat = o.MinLat
	}
	if o.MaxLat < out.MaxLat {
		out.MaxLat = o.MaxLat
	}
	if o.MinLon > out.MinLon {
		out.MinLon = o.MinLon
	}
	if o.MaxLon < out.MaxLon {
		out.MaxLon = o.MaxLon
	}
	return out
}
