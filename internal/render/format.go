package render

import (
	"fmt"
	"math"
	"strconv"
)

var suffixes = []string{"", "k", "M", "B", "T"}

// FormatNumber abbreviates n. The suffix is picked from the digit count, so
// 999999 renders as "1000.0k" rather than rolling over to "1.0M".
func FormatNumber(n int64) string {
	if n < 1000 && n > -1000 {
		return strconv.FormatInt(n, 10)
	}
	digits := len(strconv.FormatInt(abs(n), 10))
	power := min((digits-1)/3, len(suffixes)-1)
	scaled := float64(n) / math.Pow(1000, float64(power))
	return fmt.Sprintf("%.1f%s", math.Round(scaled*10)/10, suffixes[power])
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// Truncate cuts s to at most limit characters, ending in "..." when cut.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
