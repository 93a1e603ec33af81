package genome

// Region is the analysis window around a single somatic SNV. Coordinates are
// 1-based and the end is inclusive, matching the coordinates written to the
// output tree.
type Region struct {
	ID    int
	ChrID int
	Start int64
	End   int64
}

// Window returns the region [pos-radius, pos+radius] clamped to
// [1, chrLength]. A non-positive chrLength means the chromosome length is
// unknown and only the lower bound is clamped.
func Window(id, chrID int, pos, radius, chrLength int64) Region {
	start := pos - radius
	if start < 1 {
		start = 1
	}
	end := pos + radius
	if chrLength > 0 && end > chrLength {
		end = chrLength
	}
	return Region{ID: id, ChrID: chrID, Start: start, End: end}
}

// Size returns the region length in bases.
func (r Region) Size() int64 {
	return r.End - r.Start + 1
}
