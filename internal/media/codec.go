package media

import "strings"

// codecAliases groups the names external tools use interchangeably for the
// same codec. The first entry of each group is the canonical name.
var codecAliases = [][]string{
	{"hevc", "h265", "x265", "hev1", "hvc1"},
	{"h264", "avc", "x264", "avc1"},
	{"av1", "libaom-av1", "libsvtav1"},
	{"vp9", "libvpx-vp9"},
	{"mpeg2video", "mpeg2"},
	{"aac", "libfdk_aac"},
	{"ac3", "dolby digital"},
	{"eac3", "ddp", "dolby digital plus"},
	{"dts", "dca"},
	{"truehd", "mlp"},
	{"opus", "libopus"},
	{"vorbis", "libvorbis"},
	{"flac", "pcm_flac"},
	{"subrip", "srt"},
	{"hdmv_pgs_subtitle", "pgs", "pgssub"},
	{"dvd_subtitle", "vobsub", "dvdsub"},
}

var canonicalCodec = func() map[string]string {
	index := make(map[string]string, len(codecAliases)*3)
	for _, group := range codecAliases {
		for _, name := range group {
			index[name] = group[0]
		}
	}
	return index
}()

// CanonicalCodec reduces a codec name to its canonical alias-group name.
// Unrecognized names are returned trimmed and lowercased.
func CanonicalCodec(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := canonicalCodec[lowered]; ok {
		return canonical
	}
	return lowered
}

// CodecMatches reports whether two codec names identify the same codec under
// the alias table.
func CodecMatches(a, b string) bool {
	ca, cb := CanonicalCodec(a), CanonicalCodec(b)
	return ca != "" && ca == cb
}

// CodecMatchesAny reports whether the codec matches any of the candidates.
func CodecMatchesAny(codec string, candidates []string) bool {
	for _, candidate := range candidates {
		if CodecMatches(codec, candidate) {
			return true
		}
	}
	return false
}
