package scorer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// AccessMode is the opening-hours regime of a candidate ATM site.
type AccessMode string

const (
	AccessAllDay    AccessMode = "24h"
	AccessUntil2300 AccessMode = "until-23:00"
	AccessUntil1900 AccessMode = "until-19:00"
)

var accessAliases = map[string]AccessMode{
	"24h":             AccessAllDay,
	"24/7":            AccessAllDay,
	"round-the-clock": AccessAllDay,
	"until-23:00":     AccessUntil2300,
	"23:00":           AccessUntil2300,
	"23":              AccessUntil2300,
	"until-19:00":     AccessUntil1900,
	"19:00":           AccessUntil1900,
	"19":              AccessUntil1900,
}

// ParseAccessMode accepts the canonical names and a few aliases.
func ParseAccessMode(s string) (AccessMode, error) {
	if m, ok := accessAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", eris.Errorf("scorer: unknown access mode %q", s)
}

// AccessScore returns the unweighted score of mode under p.
func (p Profile) AccessScore(mode AccessMode) (float64, error) {
	s, ok := p.AccessModes[mode]
	if !ok {
		return 0, eris.Errorf("scorer: access mode %q not defined in profile %s", mode, p.Version)
	}
	return s, nil
}
