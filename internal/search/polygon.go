package search

// Contains reports whether the point lies inside the polygon using even-odd
// ray casting: a horizontal ray from the point crossing an odd number of
// edges is inside. Degenerate polygons (fewer than 3 vertices) contain
// nothing.
func (p Polygon) Contains(lat, lng float64) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		vi, vj := p[i], p[j]
		if (vi.Lat > lat) != (vj.Lat > lat) &&
			lng < (vj.Lng-vi.Lng)*(lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lng {
			inside = !inside
		}
	}
	return inside
}
