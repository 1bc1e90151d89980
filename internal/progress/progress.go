package progress

import "fmt"

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
)

// FormatBytes renders a byte count in a human-readable unit.
func FormatBytes(n int64) string {
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatText renders "downloaded / total" for observer display.
func FormatText(downloaded, total int64) string {
	return fmt.Sprintf("%s / %s", FormatBytes(downloaded), FormatBytes(total))
}

// Percent computes the integer floor percentage of downloaded over total.
// Returns 0 when total is unknown.
func Percent(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(downloaded * 100 / total)
}
