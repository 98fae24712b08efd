package tools

import (
	"context"
	"log/slog"

	"vpo/internal/config"
	"vpo/internal/deps"
	"vpo/internal/media"
	"vpo/internal/policy"
	"vpo/internal/policy/transcode"
	"vpo/internal/services"
)

// Request describes one unit of work for a tool: the probed file, the
// policy plan, and the optional transcode plan. TargetPath is the final
// location of the output, which differs from File.Path only on container
// changes.
type Request struct {
	File       media.FileInfo
	Plan       *policy.Plan
	Transcode  *transcode.Plan
	Quality    *policy.QualitySettings
	TargetPath string
	// ScaleAlgorithm names the ffmpeg scaler; empty selects lanczos.
	ScaleAlgorithm string
	// OnProgress receives streaming updates from tools that report them.
	OnProgress func(Progress)
}

// Outcome reports what a tool produced. InPlace means the source file was
// edited directly and no promotion rename is needed.
type Outcome struct {
	Tool       string
	OutputPath string
	InPlace    bool
	// UsedFallback is set when a hardware encode failed to initialize and
	// the software path completed the work.
	UsedFallback bool
}

// Tool is the capability protocol. CanHandle must be side-effect free.
type Tool interface {
	Name() string
	CanHandle(req Request) bool
	Execute(ctx context.Context, req Request) (*Outcome, error)
}

// Dispatcher holds the ordered tool chain.
type Dispatcher struct {
	tools  []Tool
	logger *slog.Logger
}

// NewDispatcher builds the standard chain from configuration and probed
// availability: mkvpropedit, then mkvmerge, then ffmpeg. Unavailable tools
// are left out of the chain entirely.
func NewDispatcher(cfg *config.Config, avail *deps.Availability, logger *slog.Logger) *Dispatcher {
	var chain []Tool
	if avail.Has("MKVToolNix mkvpropedit") {
		chain = append(chain, NewPropEdit(cfg.Tools.MkvPropEdit))
	}
	if avail.Has("MKVToolNix mkvmerge") {
		chain = append(chain, NewRemuxer(cfg.Tools.MkvMerge, cfg.Paths.TempDir))
	}
	if avail.Has("FFmpeg") {
		chain = append(chain, NewTranscoder(cfg, logger))
	}
	return &Dispatcher{tools: chain, logger: logger}
}

// NewDispatcherWith builds a dispatcher from an explicit chain, for tests.
func NewDispatcherWith(logger *slog.Logger, chain ...Tool) *Dispatcher {
	return &Dispatcher{tools: chain, logger: logger}
}

// Dispatch runs the request through the first capable tool.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	for _, tool := range d.tools {
		if !tool.CanHandle(req) {
			continue
		}
		d.logger.Debug("dispatching to tool", slog.String("tool", tool.Name()), slog.String("file", req.File.Path))
		return tool.Execute(ctx, req)
	}
	return nil, services.Wrap(services.ErrToolUnavailable, "tools", "dispatch",
		"no installed tool can realize this plan", nil)
}

// needsStreamWork reports whether the transcode plan changes any stream.
func needsStreamWork(req Request) bool {
	return req.Transcode != nil && req.Transcode.NeedsWork()
}
