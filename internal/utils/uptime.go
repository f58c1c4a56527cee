package utils

import (
	"fmt"
	"time"
)

// FormatUptime renders a duration at the coarse granularity the health
// endpoints report: hours+minutes once past an hour, minutes+seconds past
// a minute, bare seconds below that.
func FormatUptime(d time.Duration) string {
	seconds := int64(d.Seconds())
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d hours, %d minutes", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%d minutes, %d seconds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}
