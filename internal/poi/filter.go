// Package poi extracts points of interest from OSM features, classifies them
// into placement tiers and reduces them to per-cell signals.
package poi

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"
)

// TagFilter selects features by tag: a key maps either to "any value" or to
// an allowed value set. The JSON form is {"shop": ["mall"], "atm": true}.
type TagFilter struct {
	keys   []string
	values map[string]map[string]struct{} // nil set = any value
}

// ParseTagFilter decodes the JSON tag filter document.
func ParseTagFilter(data []byte) (*TagFilter, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "poi: decode tag filter")
	}
	if len(raw) == 0 {
		return nil, eris.New("poi: tag filter is empty")
	}

	f := &TagFilter{values: make(map[string]map[string]struct{}, len(raw))}
	for key, msg := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, eris.New("poi: tag filter has an empty key")
		}
		var all bool
		if err := json.Unmarshal(msg, &all); err == nil {
			if !all {
				continue
			}
			f.values[key] = nil
			f.keys = append(f.keys, key)
			continue
		}
		var list []string
		if err := json.Unmarshal(msg, &list); err != nil {
			return nil, eris.Wrapf(err, "poi: tag filter key %q must be true or a list of values", key)
		}
		set := make(map[string]struct{}, len(list))
		for _, v := range list {
			set[v] = struct{}{}
		}
		f.values[key] = set
		f.keys = append(f.keys, key)
	}
	sort.Strings(f.keys)
	return f, nil
}

// LoadTagFilter reads a tag filter document from disk.
func LoadTagFilter(path string) (*TagFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "poi: read tag filter %s", path)
	}
	return ParseTagFilter(data)
}

// Keys returns the filtered tag keys in sorted order.
func (f *TagFilter) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Category returns "key=value" for the first filter key (in sorted order)
// the tags satisfy.
func (f *TagFilter) Category(tags osm.Tags) (string, bool) {
	for _, key := range f.keys {
		v := tags.Find(key)
		if v == "" {
			continue
		}
		set := f.values[key]
		if set == nil {
			return key + "=" + v, true
		}
		if _, ok := set[v]; ok {
			return key + "=" + v, true
		}
	}
	return "", false
}

// Match reports whether the tags pass the filter.
func (f *TagFilter) Match(tags osm.Tags) bool {
	_, ok := f.Category(tags)
	return ok
}
