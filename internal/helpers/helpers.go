// Package helpers renders profile data for people.
package helpers

import (
	"fmt"
	"math"
	"time"
)

// LastUsed describes when a remembered network was last joined, like
// "last used 2 hours ago". A zero ts is "never used".
func LastUsed(ts time.Time) string {
	return lastUsed(ts, time.Now())
}

func lastUsed(ts, now time.Time) string {
	if ts.IsZero() {
		return "never used"
	}
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		// Includes timestamps from a clock that ran ahead.
		return "last used just now"
	case d < time.Hour:
		return "last used " + ago(d.Minutes(), "minute")
	case d < 48*time.Hour:
		return "last used " + ago(d.Hours(), "hour")
	case d < 14*24*time.Hour:
		return "last used " + ago(d.Hours()/24, "day")
	default:
		return "last used on " + ts.Local().Format("2 Jan 2006")
	}
}

func ago(v float64, unit string) string {
	n := int(math.Round(v))
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}
