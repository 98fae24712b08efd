package media

import "strings"

// TrackType classifies a stream within a container.
type TrackType string

const (
	TrackVideo      TrackType = "video"
	TrackAudio      TrackType = "audio"
	TrackSubtitle   TrackType = "subtitle"
	TrackAttachment TrackType = "attachment"
	TrackOther      TrackType = "other"
)

// ParseTrackType maps a probe codec_type onto the closed TrackType set.
func ParseTrackType(value string) TrackType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "video":
		return TrackVideo
	case "audio":
		return TrackAudio
	case "subtitle":
		return TrackSubtitle
	case "attachment":
		return TrackAttachment
	default:
		return TrackOther
	}
}

// Track describes one stream. Index is the zero-based position within the
// file and is the stable identity for that file across re-scans.
type Track struct {
	Index    int
	Type     TrackType
	Codec    string
	Language string
	Title    string
	Default  bool
	Forced   bool

	// Audio
	Channels      int
	ChannelLayout string

	// Video
	Width          int
	Height         int
	FrameRate      string // r_frame_rate, e.g. "24000/1001"
	AvgFrameRate   string
	ColorTransfer  string
	ColorPrimaries string
	ColorSpace     string
	ColorRange     string

	DurationSeconds float64
	BitRate         int64
}

// FileInfo is the full introspection result for one file.
type FileInfo struct {
	Path            string
	Container       string
	SizeBytes       int64
	DurationSeconds float64
	BitRate         int64
	Tags            map[string]string
	Tracks          []Track
}

// IsMatroska reports whether the container is an mkv/webm family container.
func (f FileInfo) IsMatroska() bool {
	return ContainerIsMatroska(f.Container)
}

// TracksOfType returns the tracks matching the given type in index order.
func (f FileInfo) TracksOfType(kind TrackType) []Track {
	var out []Track
	for _, track := range f.Tracks {
		if track.Type == kind {
			out = append(out, track)
		}
	}
	return out
}

// VideoTracks returns all video tracks.
func (f FileInfo) VideoTracks() []Track { return f.TracksOfType(TrackVideo) }

// AudioTracks returns all audio tracks.
func (f FileInfo) AudioTracks() []Track { return f.TracksOfType(TrackAudio) }

// SubtitleTracks returns all subtitle tracks.
func (f FileInfo) SubtitleTracks() []Track { return f.TracksOfType(TrackSubtitle) }

// PrimaryVideo selects the main video track: the first one with the largest
// pixel area. Returns false when the file has no video.
func (f FileInfo) PrimaryVideo() (Track, bool) {
	best := -1
	bestArea := -1
	for i, track := range f.Tracks {
		if track.Type != TrackVideo {
			continue
		}
		area := track.Width * track.Height
		if area > bestArea {
			best = i
			bestArea = area
		}
	}
	if best < 0 {
		return Track{}, false
	}
	return f.Tracks[best], true
}

// ContainerIsMatroska reports whether a container format name is in the
// matroska family. Probe output uses compound names like "matroska,webm".
func ContainerIsMatroska(container string) bool {
	lowered := strings.ToLower(strings.TrimSpace(container))
	for _, part := range strings.Split(lowered, ",") {
		switch strings.TrimSpace(part) {
		case "matroska", "mkv", "webm":
			return true
		}
	}
	return false
}

// NormalizeContainer reduces a probe format name to a canonical short form.
func NormalizeContainer(container string) string {
	lowered := strings.ToLower(strings.TrimSpace(container))
	switch {
	case ContainerIsMatroska(lowered):
		return "matroska"
	case strings.Contains(lowered, "mp4"), strings.Contains(lowered, "mov"):
		return "mp4"
	case lowered == "":
		return ""
	default:
		if idx := strings.IndexByte(lowered, ','); idx > 0 {
			return lowered[:idx]
		}
		return lowered
	}
}
