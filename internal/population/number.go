package population

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// decimalPattern admits plain decimal notation only: ParseFloat alone would
// also take "inf", "Infinity" and hex floats.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// ParseNumber parses a registry count as published: digits may be grouped
// with spaces (including no-break spaces) and the decimal separator may be a
// comma. An empty value is reported as missing (nil).
func ParseNumber(raw string) (*float64, error) {
	s := norm.NFKC.String(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\u202f' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, nil
	}
	if !decimalPattern.MatchString(s) {
		return nil, eris.Errorf("population: parse number %q: not a decimal count", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "population: parse number %q", raw)
	}
	return &v, nil
}

// numberOf interprets a decoded property value.
func numberOf(v any) (*float64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, eris.Errorf("population: non-finite value %v", x)
		}
		return &x, nil
	case float32:
		f := float64(x)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, eris.Errorf("population: non-finite value %v", f)
		}
		return &f, nil
	case int:
		f := float64(x)
		return &f, nil
	case int64:
		f := float64(x)
		return &f, nil
	case string:
		return ParseNumber(x)
	default:
		return nil, eris.Errorf("population: unsupported value type %T", v)
	}
}
