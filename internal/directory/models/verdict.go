package models

import (
	"strings"
	"time"

	id "lifeline/pkg/domain"
)

// Check names a single verification check. The declaration order is the
// order failing checks are listed in notes.
type Check string

const (
	CheckPhone       Check = "phone"
	CheckAddress     Check = "address"
	CheckCoordinates Check = "coordinates"
	CheckDuplicate   Check = "duplicate"
)

const (
	NotesAllPassed           = "All checks passed"
	NotesInternalFailure     = "Verification failed due to an internal error; review manually"
	noteDuplicateUnavailable = "duplicate check unavailable"
)

var checkNotes = map[Check]string{
	CheckPhone:       "phone number is not a valid mobile or landline number",
	CheckAddress:     "address is missing or too short",
	CheckCoordinates: "coordinates are outside the service area",
	CheckDuplicate:   "possible duplicate of an existing directory entry",
}

// Verdict is the result of scoring one candidate at one point in time.
// Every check uses the same polarity: true means the check passed.
type Verdict struct {
	CandidateID         id.CandidateID `json:"candidateId"`
	PhoneValid          bool           `json:"phoneValid"`
	AddressPlausible    bool           `json:"addressPlausible"`
	CoordinatesInBounds bool           `json:"coordinatesInBounds"`
	NoDuplicateFound    bool           `json:"noDuplicateFound"`
	Notes               string         `json:"notes"`
	// DuplicateOf names the matched entry when the duplicate check failed.
	DuplicateOf string    `json:"duplicateOf,omitempty"`
	ComputedAt  time.Time `json:"computedAt"`
}

// FailedChecks lists the failing checks in stable order.
func (v Verdict) FailedChecks() []Check {
	var failed []Check
	if !v.PhoneValid {
		failed = append(failed, CheckPhone)
	}
	if !v.AddressPlausible {
		failed = append(failed, CheckAddress)
	}
	if !v.CoordinatesInBounds {
		failed = append(failed, CheckCoordinates)
	}
	if !v.NoDuplicateFound {
		failed = append(failed, CheckDuplicate)
	}
	return failed
}

// Critical reports whether every check that gates a clean approval passed.
// Address plausibility is advisory only.
func (v Verdict) Critical() bool {
	return v.PhoneValid && v.CoordinatesInBounds && v.NoDuplicateFound
}

// CriticalFailures lists failed critical checks; these become override
// warnings when a moderator approves anyway.
func (v Verdict) CriticalFailures() []string {
	var out []string
	for _, c := range v.FailedChecks() {
		if c != CheckAddress {
			out = append(out, string(c))
		}
	}
	return out
}

// SameChecks compares the judgment of two verdicts, ignoring when they were computed.
func (v Verdict) SameChecks(o Verdict) bool {
	return v.CandidateID == o.CandidateID &&
		v.PhoneValid == o.PhoneValid &&
		v.AddressPlausible == o.AddressPlausible &&
		v.CoordinatesInBounds == o.CoordinatesInBounds &&
		v.NoDuplicateFound == o.NoDuplicateFound &&
		v.Notes == o.Notes &&
		v.DuplicateOf == o.DuplicateOf
}

// BuildNotes names every failing check, or states that all passed.
// duplicateUnavailable replaces the duplicate note when the directory
// could not be read.
func BuildNotes(v Verdict, duplicateUnavailable bool) string {
	failed := v.FailedChecks()
	if len(failed) == 0 {
		return NotesAllPassed
	}
	parts := make([]string, 0, len(failed))
	for _, c := range failed {
		note := checkNotes[c]
		if c == CheckDuplicate {
			switch {
			case duplicateUnavailable:
				note = noteDuplicateUnavailable
			case v.DuplicateOf != "":
				note += " (" + v.DuplicateOf + ")"
			}
		}
		parts = append(parts, string(c)+": "+note)
	}
	return "Failed checks: " + strings.Join(parts, "; ")
}

// FailedVerdict is returned when scoring itself broke.
func FailedVerdict(candidateID id.CandidateID, now time.Time) Verdict {
	return Verdict{
		CandidateID: candidateID,
		Notes:       NotesInternalFailure,
		ComputedAt:  now,
	}
}
