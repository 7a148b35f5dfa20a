package model

import "strings"

// City is a scoring target. Cities are static configuration and are never
// mutated by a run.
type City struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	OSMID    string `json:"osm_id" yaml:"osm_id" mapstructure:"osm_id"`                 // relation id, e.g. "r7373058"
	Region   string `json:"region" yaml:"region" mapstructure:"region"`                 // federal district used for the regional dump
	Registry string `json:"registry,omitempty" yaml:"registry" mapstructure:"registry"` // object key of the housing registry, empty for fallback
}

// HasRegistry reports whether the city has a housing registry dataset.
func (c City) HasRegistry() bool {
	return strings.TrimSpace(c.Registry) != ""
}

// DefaultCities returns the built-in city catalog.
func DefaultCities() []City {
	return []City{
		{Name: "krasnodar", OSMID: "r7373058", Region: "south", Registry: "myhouse_RU-CITY-016_points_matched.geojson"},
		{Name: "novorossiysk", OSMID: "r1477110", Region: "south"},
		{Name: "armavir", OSMID: "r3476238", Region: "south"},
		{Name: "rostov", OSMID: "r1285772", Region: "south"},
	}
}

// FindCity returns the city with the given name (case-insensitive).
func FindCity(cities []City, name string) (City, bool) {
	for _, c := range cities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}
