package domain

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders a duration as "Xd Yh Zm", dropping leading zero
// units. Negative durations render as "Ended", sub-minute positive
// durations as "0m". Durations are truncated to whole minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "Ended"
	}

	totalMinutes := int64(d / time.Minute)
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes % (24 * 60)) / 60
	minutes := totalMinutes % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}

	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}
