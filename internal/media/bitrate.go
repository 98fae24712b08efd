package media

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBitrate converts a human bitrate string ("15M", "1500k", "800000")
// into bits per second. Suffixes are decimal (k = 1000) per ffmpeg
// convention; an optional trailing "bps" is tolerated.
func ParseBitrate(value string) (int64, error) {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = strings.TrimSuffix(cleaned, "bps")
	if cleaned == "" {
		return 0, fmt.Errorf("parse bitrate: empty value")
	}

	multiplier := int64(1)
	switch cleaned[len(cleaned)-1] {
	case 'k':
		multiplier = 1_000
		cleaned = cleaned[:len(cleaned)-1]
	case 'm':
		multiplier = 1_000_000
		cleaned = cleaned[:len(cleaned)-1]
	case 'g':
		multiplier = 1_000_000_000
		cleaned = cleaned[:len(cleaned)-1]
	}

	number, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0, fmt.Errorf("parse bitrate %q: %w", value, err)
	}
	if number < 0 {
		return 0, fmt.Errorf("parse bitrate %q: negative", value)
	}
	return int64(number * float64(multiplier)), nil
}

// FormatBitrate renders bits per second as a compact ffmpeg-style value.
func FormatBitrate(bps int64) string {
	switch {
	case bps >= 1_000_000 && bps%1_000_000 == 0:
		return strconv.FormatInt(bps/1_000_000, 10) + "M"
	case bps >= 1_000 && bps%1_000 == 0:
		return strconv.FormatInt(bps/1_000, 10) + "k"
	default:
		return strconv.FormatInt(bps, 10)
	}
}
