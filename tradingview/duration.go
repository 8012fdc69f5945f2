package tradingview

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is the compact access-duration encoding used across the billing
// flow: a positive magnitude followed by a one-letter unit, e.g. "18M", "1Y",
// "2W", "30D".
type Duration struct {
	Magnitude int
	Unit      rune
}

var durationRegexp = regexp.MustCompile(`^(\d+)\s*([YMWDymwd])$`)

// ParseDuration parses a duration string. The unit is case-insensitive and the
// magnitude defaults to 1 when the string only carries a unit letter.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)

	if m := durationRegexp.FindStringSubmatch(s); m != nil {
		magnitude, err := strconv.Atoi(m[1])
		if err != nil || magnitude < 1 {
			magnitude = 1
		}
		return Duration{Magnitude: magnitude, Unit: unitOf(m[2])}, nil
	}

	// Bare unit, e.g. "M": magnitude defaults to 1
	if len(s) == 1 && strings.ContainsAny(s, "YMWDymwd") {
		return Duration{Magnitude: 1, Unit: unitOf(s)}, nil
	}

	return Duration{}, fmt.Errorf("invalid duration %q, expected <n><Y|M|W|D>", s)
}

func unitOf(s string) rune {
	return rune(strings.ToUpper(s)[0])
}

// AddTo returns t pushed forward by the duration.
func (d Duration) AddTo(t time.Time) time.Time {
	switch d.Unit {
	case 'Y':
		return t.AddDate(d.Magnitude, 0, 0)
	case 'M':
		return t.AddDate(0, d.Magnitude, 0)
	case 'W':
		return t.AddDate(0, 0, 7*d.Magnitude)
	default: // 'D'
		return t.AddDate(0, 0, d.Magnitude)
	}
}

func (d Duration) String() string {
	return strconv.Itoa(d.Magnitude) + string(d.Unit)
}
