package tools

import (
	"context"
	"fmt"

	"vpo/internal/policy"
)

// PropEdit realizes metadata-only plans on matroska files without a remux.
// Edits land in the file header directly, so callers back up first.
type PropEdit struct {
	binary string
}

// NewPropEdit constructs the mkvpropedit wrapper.
func NewPropEdit(binary string) *PropEdit {
	if binary == "" {
		binary = "mkvpropedit"
	}
	return &PropEdit{binary: binary}
}

func (p *PropEdit) Name() string { return "mkvpropedit" }

// CanHandle accepts plans that only touch per-track metadata on a matroska
// source with no stream work pending.
func (p *PropEdit) CanHandle(req Request) bool {
	if req.Plan == nil || !req.Plan.IsMetadataOnly() {
		return false
	}
	if needsStreamWork(req) {
		return false
	}
	return req.File.IsMatroska()
}

// Execute applies the action list in plan order.
func (p *PropEdit) Execute(ctx context.Context, req Request) (*Outcome, error) {
	args := PropEditArgs(req.File.Path, req.Plan.Actions)
	if _, err := runStreaming(ctx, p.binary, args, nil); err != nil {
		return nil, err
	}
	return &Outcome{Tool: p.Name(), OutputPath: req.File.Path, InPlace: true}, nil
}

// PropEditArgs renders the mkvpropedit argument list for an action list.
// mkvpropedit track selectors are 1-based over the file's track order.
func PropEditArgs(path string, actions []policy.PlannedAction) []string {
	args := []string{path}
	for _, action := range actions {
		if action.TrackIndex == nil {
			continue
		}
		selector := fmt.Sprintf("track:%d", *action.TrackIndex+1)
		switch action.Type {
		case policy.ActionClearDefault:
			args = append(args, "--edit", selector, "--set", "flag-default=0")
		case policy.ActionSetDefault:
			args = append(args, "--edit", selector, "--set", "flag-default=1")
		case policy.ActionSetTitle:
			args = append(args, "--edit", selector, "--set", "name="+action.Desired)
		case policy.ActionSetLanguage:
			args = append(args, "--edit", selector, "--set", "language="+action.Desired)
		case policy.ActionSetForced:
			args = append(args, "--edit", selector, "--set", "flag-forced=1")
		case policy.ActionClearForced:
			args = append(args, "--edit", selector, "--set", "flag-forced=0")
		}
	}
	return args
}
