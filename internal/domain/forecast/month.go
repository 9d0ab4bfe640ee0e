package forecast

import (
	"regexp"
	"strconv"
	"strings"
)

// MonthMax is the longest engagement horizon supported, in months
const MonthMax = 60

var (
	calendarMonthRe = regexp.MustCompile(`^\d{4}-(\d{2})$`)
	relativeMonthRe = regexp.MustCompile(`^[mM]\s*(\d{1,2})$`)
)

// NormalizeMonth parses the heterogeneous month encodings that reach the
// service and returns a canonical index in [1,60], or 0 when the value is
// unrecognized or out of range. Accepted encodings, tried in order:
// an integer already in range, a "YYYY-MM" string (the calendar month
// becomes the index), an "M<n>" string with optional internal whitespace
// and leading zero, and a plain numeric string.
func NormalizeMonth(raw any) int {
	switch v := raw.(type) {
	case int:
		return checkMonthRange(v)
	case int32:
		return checkMonthRange(int(v))
	case int64:
		return checkMonthRange(int(v))
	case float64:
		// JSON numbers decode as float64; only integral values count
		if v != float64(int(v)) {
			return 0
		}
		return checkMonthRange(int(v))
	case string:
		return normalizeMonthString(v)
	}
	return 0
}

func normalizeMonthString(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	if m := calendarMonthRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return checkMonthRange(n)
	}

	if m := relativeMonthRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return checkMonthRange(n)
	}

	if n, err := strconv.Atoi(s); err == nil {
		return checkMonthRange(n)
	}
	return 0
}

func checkMonthRange(n int) int {
	if n < 1 || n > MonthMax {
		return 0
	}
	return n
}

// ToAbsoluteMonth anchors a baseline-relative month index on the baseline
// start month: start 10 and relative 5 give absolute 14. Without an anchor
// (start < 1) the relative index is already treated as absolute. Pure and
// total; never panics.
func ToAbsoluteMonth(baselineStart, relative int) int {
	if baselineStart >= 1 {
		return baselineStart + (relative - 1)
	}
	return relative
}
