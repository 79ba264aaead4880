package moderation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"distrack/internal/errs"
)

const (
	day          = 24 * time.Hour
	month        = 30 * day
	year         = 365 * day
	MaxTimeout   = 28 * day
	purgeMaxAge  = 14 * day
	maxReasonLen = 1000
)

var (
	durationPattern         = regexp.MustCompile(`(?i)^(\d+)([smhdy])$`)
	extendedDurationPattern = regexp.MustCompile(`^(\d+)([smhdMy])$`)
)

// ParseDuration reads "<n><unit>" with s, m, h, d or y, ignoring case, so
// "10M" is ten minutes.
func ParseDuration(value string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, errs.ErrInvalidDuration
	}
	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = day
	case "y":
		unit = year
	}
	return scale(match[1], unit, errs.ErrInvalidDuration)
}

// ParseExtendedDuration is case sensitive: "M" is a 30 day month and "m"
// a minute.
func ParseExtendedDuration(value string) (time.Duration, error) {
	match := extendedDurationPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, errs.ErrInvalidExpiry
	}
	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = day
	case "M":
		unit = month
	case "y":
		unit = year
	}
	return scale(match[1], unit, errs.ErrInvalidExpiry)
}

func scale(digits string, unit time.Duration, invalid error) (time.Duration, error) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > int64(math.MaxInt64/unit) {
		return 0, invalid
	}
	return time.Duration(n) * unit, nil
}

func IsValidTimeoutDuration(d time.Duration) bool {
	return d > 0 && d <= MaxTimeout
}

// FormatDuration renders the two most significant units, e.g. "2d 3h 0m".
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
