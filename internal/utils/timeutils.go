package utils

import "time"

// ChartLabel renders a sample timestamp as the display label used on chart
// axes. Zero timestamps render empty rather than a bogus epoch time.
func ChartLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04:05")
}
