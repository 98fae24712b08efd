package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vpo/internal/fileutil"
	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/services"
)

// Remuxer realizes structural plans (track removal, reorder, default and
// forced flags, per-track metadata) by rewriting the matroska container
// with mkvmerge. It never re-encodes streams.
type Remuxer struct {
	binary  string
	tempDir string
}

// NewRemuxer constructs the mkvmerge wrapper. An empty tempDir stages
// output next to the target.
func NewRemuxer(binary, tempDir string) *Remuxer {
	if binary == "" {
		binary = "mkvmerge"
	}
	return &Remuxer{binary: binary, tempDir: tempDir}
}

func (r *Remuxer) Name() string { return "mkvmerge" }

// CanHandle accepts remux-level plans whose output stays matroska and whose
// transcode plan requires no stream work.
func (r *Remuxer) CanHandle(req Request) bool {
	if req.Plan == nil || needsStreamWork(req) {
		return false
	}
	if req.Plan.Synthesis != nil {
		return false
	}
	if change := req.Plan.ContainerChange; change != nil {
		return media.ContainerIsMatroska(change.Target)
	}
	return req.File.IsMatroska()
}

// Execute writes the remuxed container to the staging path and verifies it
// is non-empty.
func (r *Remuxer) Execute(ctx context.Context, req Request) (*Outcome, error) {
	temp := fileutil.TempOutputPath(r.tempDir, req.TargetPath)
	args := RemuxArgs(temp, req.File, req.Plan)
	if _, err := runStreaming(ctx, r.binary, args, nil); err != nil {
		_ = fileutil.RemoveIfExists(temp)
		return nil, err
	}
	if err := fileutil.EnsureNonEmpty(temp); err != nil {
		_ = fileutil.RemoveIfExists(temp)
		return nil, services.Wrap(services.ErrExternalTool, "tools", r.Name(), "remux produced no output", err)
	}
	return &Outcome{Tool: r.Name(), OutputPath: temp}, nil
}

// RemuxArgs renders the mkvmerge argument list. mkvmerge track IDs match
// the zero-based probe stream order of a matroska source.
func RemuxArgs(output string, file media.FileInfo, plan *policy.Plan) []string {
	args := []string{"-o", output}

	kept := make(map[int]bool)
	for _, d := range plan.Dispositions {
		kept[d.Index] = d.Kept
	}
	trackType := make(map[int]media.TrackType)
	for _, track := range file.Tracks {
		trackType[track.Index] = track.Type
	}

	selection := func(kind media.TrackType) (ids []string, removedAny bool) {
		for _, track := range file.Tracks {
			if track.Type != kind {
				continue
			}
			if kept[track.Index] {
				ids = append(ids, strconv.Itoa(track.Index))
			} else {
				removedAny = true
			}
		}
		return ids, removedAny
	}

	if ids, removedAny := selection(media.TrackAudio); removedAny {
		if len(ids) == 0 {
			args = append(args, "--no-audio")
		} else {
			args = append(args, "--audio-tracks", strings.Join(ids, ","))
		}
	}
	if ids, removedAny := selection(media.TrackSubtitle); removedAny {
		if len(ids) == 0 {
			args = append(args, "--no-subtitles")
		} else {
			args = append(args, "--subtitle-tracks", strings.Join(ids, ","))
		}
	}
	if ids, removedAny := selection(media.TrackAttachment); removedAny {
		if len(ids) == 0 {
			args = append(args, "--no-attachments")
		} else {
			args = append(args, "--attachments", strings.Join(ids, ","))
		}
	}

	for _, action := range plan.Actions {
		switch action.Type {
		case policy.ActionClearDefault, policy.ActionSetDefault:
			if action.TrackIndex == nil {
				continue
			}
			value := "0"
			if action.Type == policy.ActionSetDefault {
				value = "1"
			}
			args = append(args, "--default-track-flag", fmt.Sprintf("%d:%s", *action.TrackIndex, value))
		case policy.ActionSetForced, policy.ActionClearForced:
			if action.TrackIndex == nil {
				continue
			}
			value := "0"
			if action.Type == policy.ActionSetForced {
				value = "1"
			}
			args = append(args, "--forced-display-flag", fmt.Sprintf("%d:%s", *action.TrackIndex, value))
		case policy.ActionSetTitle:
			if action.TrackIndex == nil {
				continue
			}
			args = append(args, "--track-name", fmt.Sprintf("%d:%s", *action.TrackIndex, action.Desired))
		case policy.ActionSetLanguage:
			if action.TrackIndex == nil {
				continue
			}
			args = append(args, "--language", fmt.Sprintf("%d:%s", *action.TrackIndex, action.Desired))
		case policy.ActionReorder:
			if order, err := policy.DecodeOrder(action.Desired); err == nil && len(order) > 0 {
				parts := make([]string, 0, len(order))
				for _, index := range order {
					if kept[index] {
						parts = append(parts, "0:"+strconv.Itoa(index))
					}
				}
				if len(parts) > 0 {
					args = append(args, "--track-order", strings.Join(parts, ","))
				}
			}
		}
	}

	return append(args, file.Path)
}
