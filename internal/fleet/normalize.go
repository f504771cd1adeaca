package fleet

import (
	"net/url"
	"strings"
)

// NormalizePlate canonicalizes a license plate for use as a vehicle key:
// surrounding whitespace removed, letters uppercased. All plate comparisons
// in the system go through this function.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// IsDocumentLink reports whether s parses as an absolute URL. Service event
// document links are only treated as actionable when this returns true;
// anything else is carried as opaque text.
func IsDocumentLink(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
