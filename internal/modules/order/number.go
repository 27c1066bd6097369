// README: Human-readable daily order numbers (POT-YYYYMMDD-NNNN).
package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	numberPrefix = "POT"
	numberLayout = "20060102"
)

// FormatNumber renders the seq-th order of day. Sequences past 9999 widen rather than wrap.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", numberPrefix, day.Format(numberLayout), seq)
}

// ParseNumber is the inverse of FormatNumber.
func ParseNumber(number string) (day time.Time, seq int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != numberPrefix || len(parts[2]) < 4 {
		return time.Time{}, 0, fmt.Errorf("%w: malformed order number %q", ErrValidation, number)
	}
	day, err = time.Parse(numberLayout, parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: malformed order number %q", ErrValidation, number)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return time.Time{}, 0, fmt.Errorf("%w: malformed order number %q", ErrValidation, number)
	}
	return day, seq, nil
}

// orderDay truncates t to its calendar date in loc.
func orderDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
