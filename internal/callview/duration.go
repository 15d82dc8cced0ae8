package callview

import (
	"fmt"
	"math"
	"time"
)

// Duration returns the time elapsed between start and end formatted as
// "Xm Ys" or "Ys". It returns an empty string if either value is missing
// or not a valid timestamp.
func Duration(start, end any) string {
	s, ok := CoerceTime(start)
	if !ok {
		return ""
	}

	e, ok := CoerceTime(end)
	if !ok {
		return ""
	}

	return FormatDuration(e.Sub(s))
}

// FormatDuration formats d in whole seconds. Negative durations, which occur
// if the call backend reports skewed clocks, are reported as zero.
func FormatDuration(d time.Duration) string {
	secs := int64(math.Floor(d.Seconds()))
	if secs < 0 {
		secs = 0
	}

	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}

	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
