// Package cellular holds the radio records reported by a Quectel modem's
// AT+QENG engineering commands and the parsers that produce them.
package cellular

import "strings"

// RadioAccessTechnology is the radio standard used between modem and tower.
// RATNone is also the "not parsed" marker used by the validity checks.
type RadioAccessTechnology int

const (
	RATNone     RadioAccessTechnology = -1
	RATLTE      RadioAccessTechnology = 7 // LTE Cat 1
	RATLTECatM1 RadioAccessTechnology = 8
	RATLTENBIoT RadioAccessTechnology = 9
)

// ratPrefixes is checked in order; the first matching prefix wins.
var ratPrefixes = []struct {
	prefix string
	rat    RadioAccessTechnology
}{
	{"CAT-M", RATLTECatM1},
	{"eMTC", RATLTECatM1},
	{"LTE", RATLTE},
	{"CAT-NB", RATLTENBIoT},
}

// ParseRadioAccessTechnology maps the technology token of a QENG response to
// a RadioAccessTechnology. Matching is by case-sensitive prefix. Unknown or
// empty tokens return RATNone.
func ParseRadioAccessTechnology(s string) RadioAccessTechnology {
	for _, p := range ratPrefixes {
		if strings.HasPrefix(s, p.prefix) {
			return p.rat
		}
	}
	return RATNone
}

func (r RadioAccessTechnology) String() string {
	switch r {
	case RATLTE:
		return "LTE"
	case RATLTECatM1:
		return "LTE Cat-M1"
	case RATLTENBIoT:
		return "LTE NB-IoT"
	default:
		return "none"
	}
}

// Known reports whether r is one of the supported technologies. The zero
// value is not.
func (r RadioAccessTechnology) Known() bool {
	switch r {
	case RATLTE, RATLTECatM1, RATLTENBIoT:
		return true
	}
	return false
}

// Token returns the lower-case identifier used in JSON payloads.
func (r RadioAccessTechnology) Token() string {
	if r.Known() {
		return "lte"
	}
	return ""
}
