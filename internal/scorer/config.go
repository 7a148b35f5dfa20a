// Package scorer composes per-cell ATM location scores from the population,
// POI density and placement signals plus the configured access mode.
package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/atm-scoring/internal/poi"
)

// CurrentProfileVersion is the canonical constant set. Earlier sets are
// not loadable.
const CurrentProfileVersion = "v3"

// MaxScore bounds every component and, with weights summing to 1, the
// location score.
const MaxScore = 100.0

// Weights are the component weights of the final score. They sum to 1.
type Weights struct {
	Placement  float64 `yaml:"placement" json:"placement"`
	AccessMode float64 `yaml:"access_mode" json:"access_mode"`
	Population float64 `yaml:"population" json:"population"`
	POIs       float64 `yaml:"pois" json:"pois"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Placement + w.AccessMode + w.Population + w.POIs
}

// Profile is a versioned set of scoring constants.
type Profile struct {
	Version          string                 `yaml:"version" json:"version"`
	Weights          Weights                `yaml:"weights" json:"weights"`
	PopulationFactor float64                `yaml:"population_factor" json:"population_factor"`
	POIFactor        float64                `yaml:"poi_factor" json:"poi_factor"`
	Cap              float64                `yaml:"cap" json:"cap"`
	AccessModes      map[AccessMode]float64 `yaml:"access_modes" json:"access_modes"`
	Tiers            poi.TierRules          `yaml:"tiers" json:"tiers"`
}

// DefaultProfile returns the canonical profile.
func DefaultProfile() Profile {
	return Profile{
		Version: CurrentProfileVersion,
		Weights: Weights{
			Placement:  0.3,
			AccessMode: 0.2,
			Population: 0.3,
			POIs:       0.2,
		},
		PopulationFactor: 0.007,
		POIFactor:        1.25,
		Cap:              100,
		AccessModes: map[AccessMode]float64{
			AccessAllDay:    100,
			AccessUntil2300: 90,
			AccessUntil1900: 38,
		},
		Tiers: poi.DefaultTierRules(),
	}
}

// LoadProfile reads a YAML profile. Unset fields keep their default values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "scorer: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, eris.Wrapf(err, "scorer: parse profile %s", path)
	}
	if err := ValidateProfile(p); err != nil {
		return p, err
	}
	return p, nil
}

// ValidateProfile checks that a Profile is internally consistent.
func ValidateProfile(p Profile) error {
	var errs []string

	switch v := strings.TrimSpace(p.Version); v {
	case CurrentProfileVersion:
	case "":
		errs = append(errs, "version is required")
	default:
		errs = append(errs, fmt.Sprintf("version %s is not supported, want %s", v, CurrentProfileVersion))
	}

	weights := []struct {
		name string
		w    float64
	}{
		{"placement", p.Weights.Placement},
		{"access_mode", p.Weights.AccessMode},
		{"population", p.Weights.Population},
		{"pois", p.Weights.POIs},
	}
	for _, w := range weights {
		if w.w < 0 {
			errs = append(errs, fmt.Sprintf("weight %s must be >= 0", w.name))
		}
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1) > 1e-9 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.4f", sum))
	}

	if p.PopulationFactor <= 0 {
		errs = append(errs, "population_factor must be > 0")
	}
	if p.POIFactor <= 0 {
		errs = append(errs, "poi_factor must be > 0")
	}
	if p.Cap <= 0 || p.Cap > MaxScore {
		errs = append(errs, fmt.Sprintf("cap must be within (0, %g]", MaxScore))
	}

	if len(p.AccessModes) == 0 {
		errs = append(errs, "at least one access mode is required")
	}
	for mode, score := range p.AccessModes {
		if score < 0 || score > p.Cap {
			errs = append(errs, fmt.Sprintf("access mode %s score must be within [0, cap]", mode))
		}
	}

	if err := p.Tiers.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("scorer: profile validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Hash fingerprints the profile so persisted scores can be traced to the
// constants that produced them.
func (p Profile) Hash() string {
	modes := make([]string, 0, len(p.AccessModes))
	for m, s := range p.AccessModes {
		modes = append(modes, fmt.Sprintf("%s=%g", m, s))
	}
	sort.Strings(modes)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%g|%g|%g|%g|%g|%g|%g|", p.Version,
		p.Weights.Placement, p.Weights.AccessMode, p.Weights.Population, p.Weights.POIs,
		p.PopulationFactor, p.POIFactor, p.Cap)
	b.WriteString(strings.Join(modes, ","))
	for _, t := range p.Tiers {
		fmt.Fprintf(&b, "|%s=%s:%g", t.Key, t.Value, t.Tier)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
