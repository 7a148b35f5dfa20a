// Package hexagg buckets point-located values into H3 hexagonal cells.
//
// Every signal of the scoring pipeline (population, POI density, placement
// tier) is reduced to a map keyed by Cell, and those maps are joined on the
// cell id. A Cell carries its resolution, so maps built at different
// resolutions can be detected and refused before they are combined.
package hexagg
