package schedule

import (
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the literal form schedule commands use for the first due
// time, always interpreted as UTC.
const DateTimeLayout = "2006-01-02 15:04:05"

// Schedule is the single active recurring-delivery configuration.
type Schedule struct {
	NextDue time.Time `json:"nextDue"`
	Freq    Frequency `json:"frequency"`
}

// ParseDateTime reads a "YYYY-MM-DD HH:MM:SS" literal as UTC.
func ParseDateTime(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("datetime %q must look like YYYY-MM-DD HH:MM:SS", raw)
	}
	return t, nil
}

// String renders the schedule for chat replies and the status endpoint.
func (s Schedule) String() string {
	return fmt.Sprintf("next delivery at %s UTC, repeating every %s",
		s.NextDue.UTC().Format(DateTimeLayout), s.Freq)
}
