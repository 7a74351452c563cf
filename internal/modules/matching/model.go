// README: Candidate shortlist entries produced by the matching engine.
package matching

import (
	"checkride/internal/modules/examiner"
	"checkride/internal/types"
)

// Candidate is an examiner eligible to be contacted for a booking, with the
// distance from the requested location already computed.
type Candidate struct {
	ExaminerID   types.ID
	Name         string
	Email        string
	Position     types.Point
	DistanceKm   float64
	Capabilities []examiner.Capability
}

// DefaultShortlistSize caps how many candidates are contacted per search.
const DefaultShortlistSize = 3
