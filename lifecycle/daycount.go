package lifecycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO date layout used in the DaysCount tag
const DateLayout = "2006-01-02"

// DaysCount is the decoded value of the DaysCount tag: "<YYYY-MM-DD>@<days>"
type DaysCount struct {
	Date string
	Days int
}

// String encodes the counter back into its tag form
func (d DaysCount) String() string {
	return d.Date + "@" + strconv.Itoa(d.Days)
}

// FormatDaysCount builds the tag value for the UTC calendar date of t
func FormatDaysCount(t time.Time, days int) string {
	return DaysCount{Date: t.UTC().Format(DateLayout), Days: days}.String()
}

// ParseDaysCount decodes a DaysCount tag value
func ParseDaysCount(value string) (DaysCount, error) {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		return DaysCount{}, &MalformedStateError{
			Value: value,
			Err:   fmt.Errorf("expected <date>@<days>, got %d segment(s)", len(parts)),
		}
	}

	date := parts[0]
	if _, err := time.Parse(DateLayout, date); err != nil {
		return DaysCount{}, &MalformedStateError{Value: value, Err: fmt.Errorf("parse date: %w", err)}
	}

	days, err := strconv.Atoi(parts[1])
	if err != nil {
		return DaysCount{}, &MalformedStateError{Value: value, Err: fmt.Errorf("parse days: %w", err)}
	}
	if days < 0 {
		return DaysCount{}, &MalformedStateError{Value: value, Err: fmt.Errorf("negative days %d", days)}
	}

	return DaysCount{Date: date, Days: days}, nil
}
