package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"production_data_import/logger"
)

// Serial day window accepted as a spreadsheet date (roughly 2009 to 2036)
const (
	SerialWindowMin = 40000
	SerialWindowMax = 50000

	// serialLeapCorrection offsets the 1900 epoch for the phantom 29 Feb 1900
	// and the 1-based day numbering, landing on an effective 1899-12-30 epoch.
	serialLeapCorrection = 2
)

// DateStrategy turns one raw cell into a timestamp or reports no match
type DateStrategy interface {
	Name() string
	Parse(raw string) (time.Time, bool)
}

// DateResolver tries strategies in order; the first match wins
type DateResolver []DateStrategy

// DefaultDateResolver returns the locale date-time strategy followed by serial days
func DefaultDateResolver(loc *time.Location) DateResolver {
	return DateResolver{
		LocaleDateTime{Location: loc},
		SerialDay{Location: loc, Min: SerialWindowMin, Max: SerialWindowMax},
	}
}

// Resolve returns nil when no strategy accepts the value
func (r DateResolver) Resolve(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	for _, strategy := range r {
		if t, ok := strategy.Parse(raw); ok {
			if logger.Enabled(logger.DEBUG) {
				logger.Debugf("date %q matched %s", raw, strategy.Name())
			}
			return &t
		}
	}
	return nil
}

// LocaleDateTime parses "dd.mm.yyyy hh:mm" in the given location
type LocaleDateTime struct {
	Location *time.Location
}

func (LocaleDateTime) Name() string { return "locale-datetime" }

func (s LocaleDateTime) Parse(raw string) (time.Time, bool) {
	str := strings.TrimSpace(raw)
	if !strings.Contains(str, ".") || !strings.Contains(str, " ") {
		return time.Time{}, false
	}

	parts := strings.Fields(str)
	if len(parts) < 2 {
		return time.Time{}, false
	}

	dateParts := strings.Split(parts[0], ".")
	if len(dateParts) != 3 {
		return time.Time{}, false
	}
	day, okDay := atoiInRange(dateParts[0], 1, 31)
	month, okMonth := atoiInRange(dateParts[1], 1, 12)
	year, okYear := atoiInRange(dateParts[2], 1, 9999)
	if !okDay || !okMonth || !okYear {
		return time.Time{}, false
	}

	timeParts := strings.Split(parts[1], ":")
	hour, okHour := atoiInRange(timeParts[0], 0, 23)
	if !okHour {
		return time.Time{}, false
	}
	minute := 0
	if len(timeParts) > 1 && timeParts[1] != "" {
		m, ok := atoiInRange(timeParts[1], 0, 59)
		if !ok {
			return time.Time{}, false
		}
		minute = m
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, s.location()), true
}

func (s LocaleDateTime) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// SerialDay parses a spreadsheet serial day number strictly inside (Min, Max).
// The fractional part is the time of day.
type SerialDay struct {
	Location *time.Location
	Min, Max float64
}

func (SerialDay) Name() string { return "serial-day" }

func (s SerialDay) Parse(raw string) (time.Time, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || v <= s.Min || v >= s.Max {
		return time.Time{}, false
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	days := math.Floor(v)
	seconds := math.Round((v - days) * 86400)

	return time.Date(1900, time.January, 1+int(days)-serialLeapCorrection, 0, 0, int(seconds), 0, loc), true
}

func atoiInRange(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
