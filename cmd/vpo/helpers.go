package main

import (
	"strings"
	"time"
)

// shortID abbreviates a UUID for display; full IDs are still accepted
// everywhere an ID is an argument.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func truncatePath(path string, max int) string {
	if max <= 3 || len(path) <= max {
		return path
	}
	return "..." + path[len(path)-(max-3):]
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
