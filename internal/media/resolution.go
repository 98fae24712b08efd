package media

import (
	"fmt"
	"strings"
)

// Resolution is a width/height pair used by presets and scaling.
type Resolution struct {
	Width  int
	Height int
}

var resolutionPresets = map[string]Resolution{
	"480p":  {854, 480},
	"576p":  {1024, 576},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"4k":    {3840, 2160},
	"2160p": {3840, 2160},
	"8k":    {7680, 4320},
	"4320p": {7680, 4320},
}

// ResolvePreset maps a preset name ("1080p", "4k") or an explicit "WxH"
// string to a Resolution.
func ResolvePreset(name string) (Resolution, error) {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if cleaned == "" {
		return Resolution{}, fmt.Errorf("resolve resolution: empty preset")
	}
	if preset, ok := resolutionPresets[cleaned]; ok {
		return preset, nil
	}
	var width, height int
	if n, err := fmt.Sscanf(cleaned, "%dx%d", &width, &height); err == nil && n == 2 && width > 0 && height > 0 {
		return Resolution{Width: width, Height: height}, nil
	}
	return Resolution{}, fmt.Errorf("resolve resolution: unknown preset %q", name)
}

// Within reports whether dimensions fit inside the resolution.
func (r Resolution) Within(width, height int) bool {
	return width <= r.Width && height <= r.Height
}
