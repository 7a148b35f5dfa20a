package poi

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/hexagg"
	"github.com/sells-group/atm-scoring/internal/osmread"
)

// POI is a filtered point of interest.
type POI struct {
	ID       string
	Category string // "key=value" that passed the tag filter
	Tags     osm.Tags
	Point    orb.Point
}

// TierRule assigns a placement tier to features carrying Key=Value.
type TierRule struct {
	Key   string  `yaml:"key" json:"key"`
	Value string  `yaml:"value" json:"value"`
	Tier  float64 `yaml:"tier" json:"tier"`
}

// TierRules is an ordered rule list; the first matching rule wins.
type TierRules []TierRule

// DefaultTierRules returns the standard placement tiers.
func DefaultTierRules() TierRules {
	return TierRules{
		{Key: "shop", Value: "mall", Tier: 100},
		{Key: "shop", Value: "supermarket", Tier: 90},
	}
}

// Validate checks that every rule names a tag and carries a non-negative tier.
func (r TierRules) Validate() error {
	for i, rule := range r {
		if strings.TrimSpace(rule.Key) == "" || strings.TrimSpace(rule.Value) == "" {
			return eris.Errorf("poi: tier rule %d needs key and value", i)
		}
		if rule.Tier < 0 {
			return eris.Errorf("poi: tier rule %d has negative tier %v", i, rule.Tier)
		}
	}
	return nil
}

// Classify returns the tier of the first matching rule. Unmatched tags get
// tier 0 and ok=false.
func (r TierRules) Classify(tags osm.Tags) (tier float64, ok bool) {
	for _, rule := range r {
		if tags.Find(rule.Key) == rule.Value {
			return rule.Tier, true
		}
	}
	return 0, false
}

// Extract keeps the features that pass the filter.
func Extract(features []osmread.Feature, filter *TagFilter) []POI {
	out := make([]POI, 0, len(features))
	for _, f := range features {
		cat, ok := filter.Category(f.Tags)
		if !ok {
			continue
		}
		out = append(out, POI{ID: f.ID, Category: cat, Tags: f.Tags, Point: f.Point})
	}
	return out
}

// Placement is the per-cell maximum placement tier.
func Placement(pois []POI, rules TierRules, res int) (map[hexagg.Cell]float64, error) {
	records := make([]hexagg.Record, len(pois))
	gaps := 0
	for i, p := range pois {
		tier, ok := rules.Classify(p.Tags)
		if !ok {
			gaps++
		}
		records[i] = hexagg.Record{Point: p.Point, Value: tier}
	}
	if gaps > 0 {
		zap.L().Debug("poi: features without a placement tier",
			zap.String("component", "poi"),
			zap.Int("count", gaps),
		)
	}
	cells, err := hexagg.Aggregate(records, res, hexagg.Max)
	if err != nil {
		return nil, eris.Wrap(err, "poi: aggregate placement")
	}
	return cells, nil
}

// Density is the per-cell POI count, independent of tier.
func Density(pois []POI, res int) (map[hexagg.Cell]float64, error) {
	records := make([]hexagg.Record, len(pois))
	for i, p := range pois {
		records[i] = hexagg.Record{Point: p.Point}
	}
	cells, err := hexagg.Aggregate(records, res, hexagg.Count)
	if err != nil {
		return nil, eris.Wrap(err, "poi: aggregate density")
	}
	return cells, nil
}

// IsApartmentBuilding matches residential apartment buildings.
func IsApartmentBuilding(tags osm.Tags) bool {
	return tags.Find("building") == "apartments"
}

// Buildings returns the representative points of apartment buildings.
func Buildings(features []osmread.Feature) []orb.Point {
	var pts []orb.Point
	for _, f := range features {
		if IsApartmentBuilding(f.Tags) {
			pts = append(pts, f.Point)
		}
	}
	return pts
}
