// README: Shared identifier and coordinate types used across modules.
package types

// ID is an opaque stable identifier for bookings and examiners.
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// IsZero reports whether the point has never been resolved.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}
