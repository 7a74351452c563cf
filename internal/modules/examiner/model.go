// README: Examiner records and qualification parsing.
package examiner

import (
	"strings"
	"time"

	"checkride/internal/types"
)

// Capability is a normalized checkride qualification tag derived from the
// examiner's raw qualification string.
type Capability string

const (
	CapPrivate     Capability = "Private"
	CapInstrument  Capability = "Instrument"
	CapCommercial  Capability = "Commercial"
	CapCFI         Capability = "CFI"
	CapCFII        Capability = "CFII"
	CapMEI         Capability = "MEI"
	CapATP         Capability = "ATP"
	CapMultiEngine Capability = "MultiEngine"
)

type Examiner struct {
	ID            types.ID
	Name          string
	Email         string
	Phone         string
	Address       string
	Website       string
	About         string
	Qualification string
	FSDO          string
	Aircraft      string
	Notes         string
	Active        bool
	CreatedAt     time.Time
}

// qualificationTokens maps designation substrings to capabilities. Order is
// fixed so parse output is deterministic.
var qualificationTokens = []struct {
	token string
	cap   Capability
}{
	{"DPE-PE", CapPrivate},
	{"DPE-CIRE", CapInstrument},
	{"DPE-CE", CapCommercial},
	{"DPE-FIE", CapCFI},
	{"DPE-CFII", CapCFII},
	{"DPE-MEI", CapMEI},
	{"DPE-ATP", CapATP},
	{"DPE-PE-A", CapMultiEngine},
	{"DPE-FIE-A", CapMultiEngine},
}

// ParseQualifications derives the capability set from a raw qualification
// string. Unknown tokens contribute nothing; the result is deduplicated and
// ordered by the token table.
func ParseQualifications(raw string) []Capability {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	upper := strings.ToUpper(raw)
	var caps []Capability
	seen := make(map[Capability]struct{}, len(qualificationTokens))
	for _, qt := range qualificationTokens {
		if !strings.Contains(upper, qt.token) {
			continue
		}
		if _, dup := seen[qt.cap]; dup {
			continue
		}
		seen[qt.cap] = struct{}{}
		caps = append(caps, qt.cap)
	}
	return caps
}

// Capabilities returns the examiner's derived capability set.
func (e *Examiner) Capabilities() []Capability {
	return ParseQualifications(e.Qualification)
}

// HasCapability reports whether the examiner is qualified for the given exam
// type. An empty exam type matches any examiner.
func (e *Examiner) HasCapability(examType string) bool {
	if examType == "" {
		return true
	}
	for _, c := range e.Capabilities() {
		if strings.EqualFold(string(c), examType) {
			return true
		}
	}
	return false
}

// DisplayName falls back to the email local part when the roster entry has
// no name.
func (e *Examiner) DisplayName() string {
	if strings.TrimSpace(e.Name) != "" {
		return e.Name
	}
	if at := strings.IndexByte(e.Email, '@'); at > 0 {
		return e.Email[:at]
	}
	return e.Email
}

// HasValidContactInfo reports whether the examiner can be contacted and
// geocoded at all.
func (e *Examiner) HasValidContactInfo() bool {
	return strings.TrimSpace(e.Email) != "" && strings.TrimSpace(e.Address) != ""
}
