package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ActionType is the closed set of atomic intents a plan can carry.
type ActionType string

const (
	ActionClearDefault ActionType = "clear_default"
	ActionSetDefault   ActionType = "set_default"
	ActionSetTitle     ActionType = "set_title"
	ActionSetLanguage  ActionType = "set_language"
	ActionSetForced    ActionType = "set_forced"
	ActionClearForced  ActionType = "clear_forced"
	ActionReorder      ActionType = "reorder"
	ActionSetContainer ActionType = "set_container"
)

// actionRank fixes the execution-safe total order: default clears before
// default sets, per-track metadata next, the file-level reorder after, and
// container-level actions last.
func actionRank(t ActionType) int {
	switch t {
	case ActionClearDefault:
		return 0
	case ActionSetDefault:
		return 1
	case ActionSetTitle, ActionSetLanguage, ActionSetForced, ActionClearForced:
		return 2
	case ActionReorder:
		return 3
	case ActionSetContainer:
		return 4
	}
	return 5
}

// PlannedAction is one atomic intent. TrackIndex is nil for file-level
// actions such as reorder.
type PlannedAction struct {
	Type       ActionType `json:"type"`
	TrackIndex *int       `json:"track_index,omitempty"`
	Current    string     `json:"current,omitempty"`
	Desired    string     `json:"desired"`
}

// TrackDisposition records the kept/removed decision for one input track.
type TrackDisposition struct {
	Index  int    `json:"index"`
	Kept   bool   `json:"kept"`
	Reason string `json:"reason"`
}

// ContainerChange records a requested container migration.
type ContainerChange struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// SynthesisRequest carries an audio_synthesis config forward to the
// transcode planner.
type SynthesisRequest struct {
	Downmix string `json:"downmix"`
	Codec   string `json:"codec,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Plan is the evaluator's output: a totally ordered action list plus the
// per-track dispositions and container intent the executor needs.
type Plan struct {
	Actions         []PlannedAction    `json:"actions"`
	Dispositions    []TrackDisposition `json:"dispositions"`
	ContainerChange *ContainerChange   `json:"container_change,omitempty"`
	Synthesis       *SynthesisRequest  `json:"synthesis,omitempty"`
	RequiresRemux   bool               `json:"requires_remux"`
	TracksKept      int                `json:"tracks_kept"`
	TracksRemoved   int                `json:"tracks_removed"`
}

// RemovedIndices returns the input indices of removed tracks, ascending.
func (p *Plan) RemovedIndices() []int {
	var out []int
	for _, d := range p.Dispositions {
		if !d.Kept {
			out = append(out, d.Index)
		}
	}
	return out
}

// KeptIndices returns the input indices of kept tracks, ascending.
func (p *Plan) KeptIndices() []int {
	var out []int
	for _, d := range p.Dispositions {
		if d.Kept {
			out = append(out, d.Index)
		}
	}
	return out
}

// IsMetadataOnly reports whether the plan can be realized by in-place
// metadata edits: no removals, no reorder, no container change.
func (p *Plan) IsMetadataOnly() bool {
	return p.TracksRemoved == 0 && !p.RequiresRemux && p.ContainerChange == nil
}

// MarshalActions serializes the action list for persistence.
func (p *Plan) MarshalActions() (string, error) {
	data, err := json.Marshal(p.Actions)
	if err != nil {
		return "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(data), nil
}

// encodeOrder renders a track index permutation as a stable string for
// REORDER action values.
func encodeOrder(indices []int) string {
	parts := make([]string, len(indices))
	for i, index := range indices {
		parts[i] = strconv.Itoa(index)
	}
	return strings.Join(parts, ",")
}

// DecodeOrder parses a REORDER action value back into track indices.
func DecodeOrder(value string) ([]int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		index, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("decode track order %q: %w", value, err)
		}
		out = append(out, index)
	}
	return out, nil
}
