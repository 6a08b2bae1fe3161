// Package validation holds the structural checks applied to a candidate.
// Every function is total: malformed input yields false, never a panic.
package validation

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	dErrors "lifeline/pkg/domain-errors"
)

var (
	// Optional +63/63 country code or trunk 0, then a 9-prefixed 10-digit subscriber number.
	mobilePattern = regexp.MustCompile(`^(\+?63|0)?9\d{9}$`)
	// Optional country code or trunk 0, area code 2-9, then 7-8 digits.
	landlinePattern = regexp.MustCompile(`^(\+?63|0)?[2-9]\d{7,8}$`)
)

// MinAddressLength is the shortest trimmed address considered plausible.
const MinAddressLength = 6

// NormalizePhone strips whitespace and hyphens.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// ValidatePhone reports whether raw is a mobile or landline number once
// normalized.
func ValidatePhone(raw string) bool {
	phone := NormalizePhone(raw)
	if phone == "" {
		return false
	}
	return mobilePattern.MatchString(phone) || landlinePattern.MatchString(phone)
}

// AddressPlausible rejects missing and placeholder-length addresses. It is
// not a geocoding check.
func AddressPlausible(address *string) bool {
	if address == nil {
		return false
	}
	return len([]rune(strings.TrimSpace(*address))) >= MinAddressLength
}

// BoundingBox is an inclusive latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// PhilippinesBounds is the default service area.
var PhilippinesBounds = BoundingBox{MinLat: 4.5, MaxLat: 21.5, MinLng: 116.0, MaxLng: 127.0}

// NewBoundingBox validates the corners before returning the box.
func NewBoundingBox(minLat, maxLat, minLng, maxLng float64) (BoundingBox, error) {
	b := BoundingBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
	for _, v := range []float64{minLat, maxLat, minLng, maxLng} {
		if !finite(v) {
			return BoundingBox{}, dErrors.New(dErrors.CodeValidation, "bounding box corners must be finite")
		}
	}
	if minLat > maxLat || minLng > maxLng {
		return BoundingBox{}, dErrors.New(dErrors.CodeValidation, "bounding box minimum exceeds maximum")
	}
	if minLat < -90 || maxLat > 90 || minLng < -180 || maxLng > 180 {
		return BoundingBox{}, dErrors.New(dErrors.CodeValidation, "bounding box exceeds valid coordinates")
	}
	return b, nil
}

// Contains reports whether the point lies inside the box, edges included.
// NaN and infinite values are never inside.
func (b BoundingBox) Contains(lat, lng float64) bool {
	if !finite(lat) || !finite(lng) {
		return false
	}
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ValidateCoordinates checks the point against the default service area.
func ValidateCoordinates(lat, lng float64) bool {
	return PhilippinesBounds.Contains(lat, lng)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
