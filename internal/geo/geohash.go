// Package geo provides coordinate helpers for job matching: great-circle
// distance, range validation and coarse geohash cells for logs.
package geo

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// interval is one axis of a geohash cell.
type interval struct{ lo, hi float64 }

// halve narrows the interval to the half containing v and reports whether
// that was the upper half.
func (iv *interval) halve(v float64) bool {
	mid := (iv.lo + iv.hi) / 2
	if v > mid {
		iv.lo = mid
		return true
	}
	iv.hi = mid
	return false
}

// Geohash returns the geohash cell of c with precision characters, so that a
// location can be logged without revealing an address. A non-positive
// precision uses LogPrecision. Invalid coordinates encode to "".
func (c Coordinates) Geohash(precision int) string {
	if !c.Valid() {
		return ""
	}
	if precision < 1 {
		precision = LogPrecision
	}

	lat := interval{-90, 90}
	lng := interval{-180, 180}
	out := make([]byte, precision)
	bit := 0
	for i := range out {
		var idx byte
		for range 5 {
			idx <<= 1
			// Even bits split longitude, odd bits split latitude.
			var upper bool
			if bit%2 == 0 {
				upper = lng.halve(c.Lng)
			} else {
				upper = lat.halve(c.Lat)
			}
			if upper {
				idx |= 1
			}
			bit++
		}
		out[i] = geohashAlphabet[idx]
	}
	return string(out)
}
