package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is a calendar-aware delivery interval. Months are applied with
// calendar arithmetic (end-of-month clamping), then days, then seconds.
type Frequency struct {
	Months  int
	Days    int
	Seconds int
}

// ParseFrequency reads the literal bracketed form "[months:days:seconds]".
func ParseFrequency(raw string) (Frequency, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return Frequency{}, fmt.Errorf("frequency %q must be wrapped in brackets like [months:days:seconds]", raw)
	}

	parts := strings.Split(trimmed[1:len(trimmed)-1], ":")
	if len(parts) != 3 {
		return Frequency{}, fmt.Errorf("frequency %q must have three colon-separated fields", raw)
	}

	values := make([]int, 3)
	for i, part := range parts {
		val, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Frequency{}, fmt.Errorf("frequency field %q is not an integer", part)
		}
		values[i] = val
	}

	return Frequency{Months: values[0], Days: values[1], Seconds: values[2]}, nil
}

// String renders the same bracketed form ParseFrequency accepts.
func (f Frequency) String() string {
	return fmt.Sprintf("[%d:%d:%d]", f.Months, f.Days, f.Seconds)
}

// Advance applies the frequency to t: months first with end-of-month clamping,
// then days, then seconds. time.AddDate alone would normalize Jan 31 + 1 month
// into March, so the month step is clamped by hand.
func (f Frequency) Advance(t time.Time) time.Time {
	next := addMonthsClamped(t, f.Months)
	next = next.AddDate(0, 0, f.Days)
	return next.Add(time.Duration(f.Seconds) * time.Second)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}

	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysInMonth relies on day zero of the following month normalizing backwards.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
