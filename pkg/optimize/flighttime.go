package optimize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/flightprep/pkg/table"
)

// CarryOver is subtracted from encoded clock times at or past it. A value of
// 2430 means 00:30 on the same operational day, not the following one.
const CarryOver = 2400

// FlightTimes maps each encoded HHMM column to the timestamp column derived
// from it.
var FlightTimes = []struct{ Source, Target string }{
	{"DepTime", "Departure"},
	{"CRSDepTime", "CRSDeparture"},
	{"ArrTime", "Arrival"},
	{"CRSArrTime", "CRSArrival"},
}

// DateParts are the calendar columns combined with each HHMM value.
var DateParts = []string{"Year", "Month", "DayofMonth"}

// NormalizeHHMM zero-fills an encoded clock time to four digits and applies
// the CarryOver wraparound. It reports false for anything that is not a
// valid time of day afterwards.
func NormalizeHHMM(s string) (string, bool) {
	v, ok := parseWhole(strings.TrimSpace(s))
	if !ok || v < 0 {
		return "", false
	}
	if v >= CarryOver {
		v -= CarryOver
	}
	if v/100 > 23 || v%100 > 59 {
		return "", false
	}
	return fmt.Sprintf("%04d", v), true
}

// parseWhole accepts integer text and integral float text ("930.0").
func parseWhole(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// wholeAt reads row i of a numeric or text column as an integer.
func wholeAt(col table.Column, i int) (int64, bool) {
	switch c := col.(type) {
	case *table.IntColumn:
		return c.Value(i), true
	case *table.FloatColumn:
		v := c.Value(i)
		if math.IsNaN(v) || v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	default:
		s, ok := col.Format(i)
		if !ok {
			return 0, false
		}
		return parseWhole(strings.TrimSpace(s))
	}
}

// deriveFlightTimes replaces the HHMM and date-part columns with absolute
// timestamps. Rows missing any component, or naming an impossible date or
// time, get a null timestamp.
func deriveFlightTimes(t *table.Table) (map[string]int, error) {
	parts := make([]table.Column, len(DateParts))
	for i, name := range DateParts {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("flight data missing date column %q", name)
		}
		parts[i] = col
	}

	nulls := make(map[string]int, len(FlightTimes))
	rows := t.NumRows()
	derived := make([]*table.TimestampColumn, len(FlightTimes))
	for k, ft := range FlightTimes {
		src, ok := t.Column(ft.Source)
		if !ok {
			return nil, fmt.Errorf("flight data missing time column %q", ft.Source)
		}
		if _, exists := t.Column(ft.Target); exists {
			return nil, fmt.Errorf("derived column %q already present", ft.Target)
		}

		seconds := make([]int64, rows)
		valid := make([]bool, rows)
		for i := 0; i < rows; i++ {
			ts, ok := flightTimestamp(parts, src, i)
			if !ok {
				nulls[ft.Target]++
				continue
			}
			seconds[i] = ts.Unix()
			valid[i] = true
		}
		derived[k] = table.NewTimestampColumn(seconds, valid)
	}

	for k, ft := range FlightTimes {
		if err := t.Add(ft.Target, derived[k]); err != nil {
			return nil, err
		}
	}
	for _, ft := range FlightTimes {
		t.Drop(ft.Source)
	}
	t.Drop(DateParts...)
	return nulls, nil
}

func flightTimestamp(parts []table.Column, src table.Column, i int) (time.Time, bool) {
	year, ok := wholeAt(parts[0], i)
	if !ok {
		return time.Time{}, false
	}
	month, ok := wholeAt(parts[1], i)
	if !ok {
		return time.Time{}, false
	}
	day, ok := wholeAt(parts[2], i)
	if !ok {
		return time.Time{}, false
	}
	raw, ok := wholeAt(src, i)
	if !ok {
		return time.Time{}, false
	}
	hhmm, ok := NormalizeHHMM(strconv.FormatInt(raw, 10))
	if !ok {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(hhmm[:2])
	minute, _ := strconv.Atoi(hhmm[2:])

	ts := time.Date(int(year), time.Month(month), int(day), hour, minute, 0, 0, time.UTC)
	// time.Date normalizes out-of-range parts; reject instead of rolling over.
	if ts.Year() != int(year) || int64(ts.Month()) != month || int64(ts.Day()) != day {
		return time.Time{}, false
	}
	return ts, true
}
