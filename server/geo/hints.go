package geo

import "math"

// HemisphereSummary labels the coordinate's hemisphere pair, e.g.
// "Northern Hemisphere & Western Hemisphere".
func HemisphereSummary(lat, lon float64) string {
	ns := "Southern Hemisphere"
	if lat >= 0 {
		ns = "Northern Hemisphere"
	}
	ew := "Western Hemisphere"
	if lon >= 0 {
		ew = "Eastern Hemisphere"
	}
	return ns + " & " + ew
}

// ClimateBand maps absolute latitude onto a coarse climate label.
func ClimateBand(lat float64) string {
	absLat := math.Abs(lat)
	switch {
	case absLat < 15:
		return "tropical"
	case absLat < 35:
		return "subtropical"
	case absLat < 55:
		return "temperate"
	case absLat < 66:
		return "cool temperate"
	default:
		return "polar"
	}
}
