package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateKey identifies a daily report: a calendar day ("YYYY-MM-DD") in the
// configured report time zone.
type DateKey string

// HourKey is a zero-padded local hour of day, "00" through "23".
type HourKey string

func (k DateKey) String() string { return string(k) }
func (k HourKey) String() string { return string(k) }

func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Format(dateLayout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateKey, s)
	}
	return DateKey(s), nil
}

func ParseHourKey(s string) (HourKey, error) {
	if len(s) != 2 || s[0] < '0' || s[0] > '2' || s[1] < '0' || s[1] > '9' || s > "23" {
		return "", fmt.Errorf("%w: %q", ErrInvalidHourKey, s)
	}
	return HourKey(s), nil
}

// BucketOf derives the report keys for an instant as seen in loc.
func BucketOf(t time.Time, loc *time.Location) (DateKey, HourKey) {
	local := t.In(loc)
	return DateKey(local.Format(dateLayout)), HourKey(fmt.Sprintf("%02d", local.Hour()))
}
