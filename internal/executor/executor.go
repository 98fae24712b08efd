package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vpo/internal/config"
	"vpo/internal/fileutil"
	"vpo/internal/media"
	"vpo/internal/plugins"
	"vpo/internal/policy"
	"vpo/internal/policy/transcode"
	"vpo/internal/services"
	"vpo/internal/store"
	"vpo/internal/tools"
)

// PhaseError is a fatal phase failure under on_error=fail, raised after
// rollback restored the source file.
type PhaseError struct {
	Phase     string
	Operation string
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: operation %s: %v", e.Phase, e.Operation, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Prober introspects one file. *ffprobe.Prober is the production
// implementation.
type Prober interface {
	Probe(ctx context.Context, path string) (media.FileInfo, error)
}

// Executor runs policy phases against catalog files.
type Executor struct {
	cfg        *config.Config
	store      *store.Store
	prober     Prober
	dispatcher *tools.Dispatcher
	registry   *plugins.Registry
	logger     *slog.Logger
}

// New wires an executor.
func New(cfg *config.Config, st *store.Store, prober Prober, dispatcher *tools.Dispatcher, registry *plugins.Registry, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, store: st, prober: prober, dispatcher: dispatcher, registry: registry, logger: logger}
}

// ExecutePolicy runs every phase of the schema against one file and
// captures a single processing-stats row on success.
func (e *Executor) ExecutePolicy(ctx context.Context, fileRec *store.File, schema policy.Schema, jobID string, onProgress func(tools.Progress)) (*RunResult, error) {
	cfg := schema.Config
	if len(cfg.CommentaryPatterns) == 0 {
		cfg.CommentaryPatterns = e.cfg.Execution.CommentaryPatterns
	}

	before, err := e.prober.Probe(ctx, fileRec.Path)
	if err != nil {
		return nil, err
	}
	result := &RunResult{
		PolicyName:  schema.Name,
		Path:        fileRec.Path,
		SizeBefore:  before.SizeBytes,
		VideoBefore: len(before.VideoTracks()),
		AudioBefore: len(before.AudioTracks()),
		SubsBefore:  len(before.SubtitleTracks()),
	}
	if result.SizeBefore == 0 {
		if info, statErr := os.Stat(fileRec.Path); statErr == nil {
			result.SizeBefore = info.Size()
		}
	}

	progress := func(p tools.Progress) {
		result.FinalProgress = p
		if onProgress != nil {
			onProgress(p)
		}
	}

	for _, phase := range schema.Phases {
		phaseResult, err := e.ExecutePhase(ctx, fileRec, cfg, phase, progress)
		if phaseResult != nil {
			result.Phases = append(result.Phases, *phaseResult)
			if phaseResult.NewPath != "" {
				result.Path = phaseResult.NewPath
			}
			if result.HashBefore == "" {
				result.HashBefore = phaseResult.SourceHash
			}
			result.RemovedCount += phaseResult.TracksRemoved
			if phaseResult.TranscodeApplied {
				result.TranscodeUsed = true
				result.HardwareUsed = e.cfg.Transcode.HardwareAccel != "" && !phaseResult.UsedFallback
			}
		}
		if err != nil {
			return result, err
		}
		if phaseResult != nil && phaseResult.Stopped {
			break
		}
	}

	after, err := e.prober.Probe(ctx, result.Path)
	if err == nil {
		result.SizeAfter = after.SizeBytes
		result.VideoAfter = len(after.VideoTracks())
		result.AudioAfter = len(after.AudioTracks())
		result.SubsAfter = len(after.SubtitleTracks())
	}
	if result.SizeAfter == 0 {
		if info, statErr := os.Stat(result.Path); statErr == nil {
			result.SizeAfter = info.Size()
		}
	}

	if result.HashBefore != "" {
		if hash, hashErr := fileutil.HashFile(result.Path); hashErr == nil {
			result.HashAfter = hash
		}
	}

	if err := e.recordStats(ctx, fileRec.ID, jobID, result); err != nil {
		e.logger.Warn("failed to record processing stats", slog.String("file", result.Path), slog.Any("error", err))
	}
	return result, nil
}

// ExecutePhase runs one phase with the backup/rollback lifecycle.
func (e *Executor) ExecutePhase(ctx context.Context, fileRec *store.File, cfg policy.Config, phase policy.PhaseDefinition, onProgress func(tools.Progress)) (*PhaseResult, error) {
	started := time.Now()
	result := &PhaseResult{Phase: phase.Name}
	defer func() { result.DurationSeconds = time.Since(started).Seconds() }()

	path := fileRec.Path
	info, err := e.prober.Probe(ctx, path)
	if err != nil {
		return result, err
	}
	origStat, err := os.Stat(path)
	if err != nil {
		return result, services.Wrap(services.ErrFilesystem, "executor", "stat", path, err)
	}
	originalMtime := origStat.ModTime()

	enrich, err := e.loadEnrichment(ctx, fileRec)
	if err != nil {
		return result, err
	}

	plan, err := policy.Evaluate(info, cfg, phase, enrich)
	if err != nil {
		var policyErr *policy.PolicyError
		if services.IsConstraint(err) || errors.As(err, &policyErr) {
			result.ConstraintSkipped = true
			result.SkipReason = err.Error()
			e.logger.Info("phase skipped by policy constraint",
				slog.String("phase", phase.Name), slog.String("file", path), slog.String("reason", err.Error()))
			return result, nil
		}
		return result, err
	}

	var tplan *transcode.Plan
	if phase.Transcode != nil {
		removed := make(map[int]bool)
		for _, index := range plan.RemovedIndices() {
			removed[index] = true
		}
		tplan, err = transcode.BuildPlan(transcode.Request{
			File:        info,
			Config:      *phase.Transcode,
			AudioConfig: phase.AudioTranscode,
			Synthesis:   plan.Synthesis,
			Removed:     removed,
		})
		if err != nil {
			return e.handleFailure(ctx, result, path, "", "transcode_plan", err)
		}
		if tplan.ShouldSkip {
			result.SkipReason = tplan.SkipReason
			tplan = nil
		}
	}

	structural := len(plan.Actions) > 0 || plan.TracksRemoved > 0 ||
		plan.ContainerChange != nil || (tplan != nil && tplan.NeedsWork())

	backup := ""
	if structural {
		backup = fileutil.BackupPath(path)
		sourceHash, err := fileutil.CopyFileVerified(path, backup)
		if err != nil {
			return result, &PhaseError{Phase: phase.Name, Operation: "backup",
				Err: services.Wrap(services.ErrFilesystem, "executor", "backup", path, err)}
		}
		result.SourceHash = sourceHash

		outcome, opErr := e.runStructural(ctx, fileRec, info, plan, tplan, phase, backup, onProgress)
		if opErr != nil {
			return e.handleFailure(ctx, result, path, backup, "apply", opErr)
		}
		result.Changed = true
		result.ToolUsed = outcome.Tool
		result.UsedFallback = outcome.UsedFallback
		result.TracksRemoved = plan.TracksRemoved
		result.TranscodeApplied = tplan != nil && tplan.NeedsVideoTranscode
		if outcome.OutputPath != path && !outcome.InPlace {
			result.NewPath = outcome.OutputPath
			path = outcome.OutputPath
		}
	}

	if phase.FileTimestamp != nil {
		if err := e.applyTimestamp(path, originalMtime, phase.FileTimestamp, enrich.PluginMetadata); err != nil {
			if next, retErr := e.handleFailure(ctx, result, path, backup, "file_timestamp", err); retErr != nil || next.Stopped {
				return next, retErr
			}
		}
	}

	if phase.Transcription != nil && phase.Transcription.Enabled {
		if err := e.runTranscription(ctx, fileRec, info, phase.Transcription); err != nil {
			if next, retErr := e.handleFailure(ctx, result, path, backup, "transcription", err); retErr != nil || next.Stopped {
				return next, retErr
			}
		}
	}

	if backup != "" {
		if err := fileutil.RemoveIfExists(backup); err != nil {
			e.logger.Warn("failed to remove backup", slog.String("backup", backup), slog.Any("error", err))
		}
	}
	return result, nil
}

// runStructural performs the single consolidated external-tool invocation
// for the phase and promotes the staged output.
func (e *Executor) runStructural(ctx context.Context, fileRec *store.File, info media.FileInfo, plan *policy.Plan, tplan *transcode.Plan, phase policy.PhaseDefinition, backup string, onProgress func(tools.Progress)) (*tools.Outcome, error) {
	path := fileRec.Path
	target := path
	if plan.ContainerChange != nil {
		target = replaceExtension(path, plan.ContainerChange.Target)
	}

	actionsJSON, err := plan.MarshalActions()
	if err != nil {
		return nil, err
	}
	op, err := e.store.BeginOperation(ctx, path, actionsJSON, backup)
	if err != nil {
		return nil, err
	}

	var quality *policy.QualitySettings
	if phase.Transcode != nil {
		quality = phase.Transcode.Quality
	}
	outcome, err := e.dispatcher.Dispatch(ctx, tools.Request{
		File:           info,
		Plan:           plan,
		Transcode:      tplan,
		Quality:        quality,
		TargetPath:     target,
		ScaleAlgorithm: e.cfg.Transcode.ScaleAlgorithm,
		OnProgress:     onProgress,
	})
	if err != nil {
		_ = e.store.FinishOperation(ctx, op.ID, store.OpFailed)
		return nil, err
	}

	if !outcome.InPlace {
		if err := e.promote(ctx, fileRec, outcome.OutputPath, target); err != nil {
			_ = e.store.FinishOperation(ctx, op.ID, store.OpFailed)
			return nil, err
		}
		outcome.OutputPath = target
	}
	if err := e.store.FinishOperation(ctx, op.ID, store.OpCompleted); err != nil {
		e.logger.Warn("failed to finish operation record", slog.String("operation", op.ID), slog.Any("error", err))
	}
	return outcome, nil
}

// promote moves the staged output over the target and keeps the catalog
// row pointing at the live path. With backup_original the pre-change file
// survives under an .original[.n] sibling.
func (e *Executor) promote(ctx context.Context, fileRec *store.File, staged, target string) error {
	source := fileRec.Path
	if e.cfg.Transcode.BackupOriginal {
		retained := fileutil.NextOriginalPath(source)
		if err := fileutil.AtomicRename(source, retained); err != nil {
			return services.Wrap(services.ErrFilesystem, "executor", "retain original", source, err)
		}
	} else if target != source {
		// Container change leaves the old extension behind otherwise.
		defer func() { _ = fileutil.RemoveIfExists(source) }()
	}
	if err := fileutil.AtomicRename(staged, target); err != nil {
		return services.Wrap(services.ErrFilesystem, "executor", "promote output", target, err)
	}
	if target != source {
		if err := e.store.UpdateFilePath(ctx, fileRec.ID, target); err != nil {
			return err
		}
		fileRec.Path = target
	}
	return nil
}

// handleFailure applies the configured on_error mode. It returns a nil
// error for skip and continue; fail rolls the file back and raises a
// PhaseError.
func (e *Executor) handleFailure(ctx context.Context, result *PhaseResult, path, backup, operation string, opErr error) (*PhaseResult, error) {
	result.Failures = append(result.Failures, OperationFailure{Operation: operation, Error: opErr.Error()})

	mode := strings.TrimSpace(e.cfg.Execution.OnError)
	switch mode {
	case "continue":
		e.logger.Warn("operation failed, continuing",
			slog.String("operation", operation), slog.String("file", path), slog.Any("error", opErr))
		return result, nil
	case "skip":
		e.logger.Warn("operation failed, stopping phase",
			slog.String("operation", operation), slog.String("file", path), slog.Any("error", opErr))
		result.Stopped = true
		if backup != "" {
			_ = fileutil.RemoveIfExists(backup)
		}
		return result, nil
	default: // fail
		if backup != "" {
			if _, err := fileutil.CopyFileVerified(backup, path); err != nil {
				e.logger.Error("rollback failed",
					slog.String("backup", backup), slog.String("file", path), slog.Any("error", err))
			} else {
				_ = fileutil.RemoveIfExists(backup)
			}
		}
		result.Stopped = true
		return result, &PhaseError{Phase: result.Phase, Operation: operation, Err: opErr}
	}
}

func (e *Executor) recordStats(ctx context.Context, fileID int64, jobID string, result *RunResult) error {
	timings := make(map[string]float64, len(result.Phases))
	for _, phase := range result.Phases {
		timings[phase.Phase] = phase.DurationSeconds
	}
	timingsJSON, err := json.Marshal(timings)
	if err != nil {
		return err
	}
	actionsJSON, err := json.Marshal(result.failures())
	if err != nil {
		return err
	}

	encoder := store.EncoderUnknown
	if result.TranscodeUsed {
		encoder = store.EncoderSoftware
		if result.HardwareUsed {
			encoder = store.EncoderHardware
		}
	}
	_, err = e.store.InsertProcessingStats(ctx, &store.ProcessingStats{
		FileID:            fileID,
		JobID:             jobID,
		PolicyName:        result.PolicyName,
		SizeBefore:        result.SizeBefore,
		SizeAfter:         result.SizeAfter,
		VideoBefore:       result.VideoBefore,
		VideoAfter:        result.VideoAfter,
		AudioBefore:       result.AudioBefore,
		AudioAfter:        result.AudioAfter,
		SubtitleBefore:    result.SubsBefore,
		SubtitleAfter:     result.SubsAfter,
		RemovedCount:      result.RemovedCount,
		PhaseTimingsJSON:  string(timingsJSON),
		ActionResultsJSON: string(actionsJSON),
		EncoderFPS:        result.FinalProgress.FPS,
		EncoderBitrate:    result.FinalProgress.Bitrate,
		EncoderFrames:     result.FinalProgress.FrameCurrent,
		EncoderType:       encoder,
		HashBefore:        result.HashBefore,
		HashAfter:         result.HashAfter,
	})
	return err
}

func replaceExtension(path, container string) string {
	ext := ".mkv"
	if media.NormalizeContainer(container) == "mp4" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ext
}
