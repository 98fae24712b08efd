// Package deps checks the external binaries the pipeline dispatches to.
// Availability is probed once and passed explicitly; nothing in the
// execution path re-resolves tools mid-run.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"vpo/internal/config"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the requirement list from configured tool paths.
// mkvmerge and mkvpropedit are optional: without them every plan falls
// back to the ffmpeg remux path.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "transcoding and remuxing"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "media introspection"},
		{Name: "MKVToolNix mkvmerge", Command: cfg.MkvMergeBinary(), Description: "matroska remux fast path", Optional: true},
		{Name: "MKVToolNix mkvpropedit", Command: cfg.MkvPropEditBinary(), Description: "in-place matroska metadata edits", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Availability is the probed tool set handed to the executor.
type Availability struct {
	statuses map[string]Status
}

// Probe resolves every configured tool once.
func Probe(cfg *config.Config) *Availability {
	avail := &Availability{statuses: make(map[string]Status)}
	for _, status := range CheckBinaries(Requirements(cfg)) {
		avail.statuses[status.Name] = status
	}
	return avail
}

// Lookup returns the status for a requirement name.
func (a *Availability) Lookup(name string) (Status, bool) {
	status, ok := a.statuses[name]
	return status, ok
}

// Has reports whether the named tool resolved.
func (a *Availability) Has(name string) bool {
	status, ok := a.statuses[name]
	return ok && status.Available
}

// MissingRequired lists required tools that did not resolve.
func (a *Availability) MissingRequired() []Status {
	var missing []Status
	for _, status := range a.statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
