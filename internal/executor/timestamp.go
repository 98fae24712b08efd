package executor

import (
	"fmt"
	"os"
	"time"

	"vpo/internal/policy"
	"vpo/internal/services"
)

// releaseDateSources is the lookup order over plugin metadata keys when no
// explicit date_source preference is configured.
var releaseDateSources = []string{
	"release_date",
	"digital_release",
	"physical_release",
	"cinema_release",
	"air_date",
	"premiere_date",
}

// applyTimestamp realizes the file_timestamp operation. Mode preserve
// restores the mtime captured before the phase touched the file; mode
// release_date derives midnight UTC from plugin metadata.
func (e *Executor) applyTimestamp(path string, original time.Time, cfg *policy.FileTimestampConfig, meta map[string]map[string]string) error {
	switch cfg.Mode {
	case policy.TimestampPreserve, "":
		return restoreMtime(path, original)
	case policy.TimestampNow:
		return nil
	case policy.TimestampReleaseDate:
		when, ok := resolveReleaseDate(cfg.DateSource, meta)
		if ok {
			return chtimes(path, when)
		}
		switch cfg.Fallback {
		case policy.TimestampFallbackNow:
			return chtimes(path, time.Now())
		case policy.TimestampFallbackSkip:
			return nil
		default:
			return restoreMtime(path, original)
		}
	default:
		return services.Wrap(services.ErrConfiguration, "executor", "file_timestamp",
			fmt.Sprintf("unknown mode %q", cfg.Mode), nil)
	}
}

func restoreMtime(path string, original time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "executor", "file_timestamp", path, err)
	}
	if info.ModTime().Equal(original) {
		return nil
	}
	return chtimes(path, original)
}

func chtimes(path string, when time.Time) error {
	if err := os.Chtimes(path, when, when); err != nil {
		return services.Wrap(services.ErrFilesystem, "executor", "file_timestamp", path, err)
	}
	return nil
}

// resolveReleaseDate walks the configured preference then the standard
// source order over every plugin's metadata, parsing the first usable date
// to midnight UTC.
func resolveReleaseDate(preferred string, meta map[string]map[string]string) (time.Time, bool) {
	order := releaseDateSources
	if preferred != "" {
		order = append([]string{preferred}, releaseDateSources...)
	}
	for _, key := range order {
		for _, values := range meta {
			raw, ok := values[key]
			if !ok || raw == "" {
				continue
			}
			if when, ok := parseReleaseDate(raw); ok {
				return when, true
			}
		}
	}
	return time.Time{}, false
}

func parseReleaseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			year, month, day := parsed.UTC().Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
