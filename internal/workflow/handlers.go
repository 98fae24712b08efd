package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vpo/internal/executor"
	"vpo/internal/fileutil"
	"vpo/internal/policy"
	"vpo/internal/services"
	"vpo/internal/store"
	"vpo/internal/tools"
)

func errUnknownJobType(t store.JobType) error {
	return services.Wrap(services.ErrInput, "workflow", "dispatch",
		fmt.Sprintf("no handler for job type %q", t), nil)
}

// mediaExtensions are the container suffixes a scan considers.
var mediaExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".m4v":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".ts":   true,
	".wmv":  true,
}

// scanSummary is the progress blob a scan job leaves behind.
type scanSummary struct {
	Discovered int `json:"discovered"`
	Updated    int `json:"updated"`
	Errored    int `json:"errored"`
}

type scanHandler struct {
	store  *store.Store
	prober executor.Prober
	logger *slog.Logger
}

func (h *scanHandler) Type() store.JobType { return store.JobScan }

// Handle walks the job's directory tree and upserts every media file with
// its probed tracks. Probe failures are cataloged as scan errors rather
// than failing the job.
func (h *scanHandler) Handle(ctx context.Context, job *store.Job) error {
	root := job.FilePath
	if _, err := os.Stat(root); err != nil {
		return services.Wrap(services.ErrNotFound, "workflow", "scan", root, err)
	}

	var summary scanSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".vpo_temp_") || strings.HasSuffix(d.Name(), ".vpo-backup") {
			return nil
		}
		summary.Discovered++
		if err := h.scanOne(ctx, job, path); err != nil {
			summary.Errored++
			h.logger.Warn("scan failed for file", slog.String("file", path), slog.Any("error", err))
		} else {
			summary.Updated++
		}
		return nil
	})
	if err != nil {
		return err
	}

	blob, marshalErr := json.Marshal(summary)
	if marshalErr != nil {
		return marshalErr
	}
	return h.store.UpdateJobProgress(ctx, job.ID, 100, string(blob))
}

func (h *scanHandler) scanOne(ctx context.Context, job *store.Job, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return err
	}
	mtime := stat.ModTime().UTC()

	info, probeErr := h.prober.Probe(ctx, path)
	if probeErr != nil {
		_, upsertErr := h.store.UpsertFileWithTracks(ctx, &store.File{
			Path:       path,
			Size:       stat.Size(),
			ModifiedAt: &mtime,
			ScanStatus: store.ScanError,
			ScanError:  probeErr.Error(),
			ScanJobID:  job.ID,
		}, nil)
		if upsertErr != nil {
			return upsertErr
		}
		return probeErr
	}

	tracks := make([]store.Track, 0, len(info.Tracks))
	for _, track := range info.Tracks {
		tracks = append(tracks, store.Track{
			Index:           track.Index,
			Type:            string(track.Type),
			Codec:           track.Codec,
			Language:        track.Language,
			Title:           track.Title,
			Default:         track.Default,
			Forced:          track.Forced,
			Channels:        track.Channels,
			ChannelLayout:   track.ChannelLayout,
			Width:           track.Width,
			Height:          track.Height,
			FrameRate:       track.FrameRate,
			AvgFrameRate:    track.AvgFrameRate,
			ColorTransfer:   track.ColorTransfer,
			ColorPrimaries:  track.ColorPrimaries,
			ColorSpace:      track.ColorSpace,
			ColorRange:      track.ColorRange,
			DurationSeconds: track.DurationSeconds,
		})
	}
	size := info.SizeBytes
	if size == 0 {
		size = stat.Size()
	}
	_, err = h.store.UpsertFileWithTracks(ctx, &store.File{
		Path:       path,
		Size:       size,
		ModifiedAt: &mtime,
		Container:  info.Container,
		ScanStatus: store.ScanOK,
		ScanJobID:  job.ID,
	}, tracks)
	return err
}

type pruneHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func (h *pruneHandler) Type() store.JobType { return store.JobPrune }

// Handle removes catalog rows whose file no longer exists on disk.
func (h *pruneHandler) Handle(ctx context.Context, job *store.Job) error {
	prefix := job.FilePath
	files, err := h.store.ListFilesUnderPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	pruned := 0
	for _, file := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, statErr := os.Stat(file.Path); !errors.Is(statErr, os.ErrNotExist) {
			continue
		}
		if err := h.store.DeleteFile(ctx, file.ID); err != nil {
			return err
		}
		pruned++
	}
	blob, err := json.Marshal(map[string]int{"examined": len(files), "pruned": pruned})
	if err != nil {
		return err
	}
	return h.store.UpdateJobProgress(ctx, job.ID, 100, string(blob))
}

// progressPersistInterval throttles progress writes so they never contend
// with the claim path.
const progressPersistInterval = 2 * time.Second

type processHandler struct {
	jobType       store.JobType
	store         *store.Store
	exec          *executor.Executor
	logger        *slog.Logger
	transcodeOnly bool
}

func (h *processHandler) Type() store.JobType { return h.jobType }

// Handle evaluates the job's policy phases against its file through the
// phase executor, streaming transcode progress into the job row.
func (h *processHandler) Handle(ctx context.Context, job *store.Job) error {
	var schema policy.Schema
	if err := json.Unmarshal([]byte(job.PolicyJSON), &schema); err != nil {
		return services.Wrap(services.ErrInput, "workflow", "process", "malformed policy payload", err)
	}
	if h.transcodeOnly {
		var phases []policy.PhaseDefinition
		for _, phase := range schema.Phases {
			if phase.Transcode != nil || phase.AudioTranscode != nil {
				phases = append(phases, phase)
			}
		}
		schema.Phases = phases
	}

	fileRec, err := h.resolveFile(ctx, job)
	if err != nil {
		return err
	}

	var lastPersisted time.Time
	onProgress := func(update tools.Progress) {
		now := time.Now()
		if !update.Done && now.Sub(lastPersisted) < progressPersistInterval {
			return
		}
		lastPersisted = now
		blob, err := json.Marshal(update)
		if err != nil {
			return
		}
		if err := h.store.UpdateJobProgress(ctx, job.ID, update.Percent, string(blob)); err != nil && ctx.Err() == nil {
			h.logger.Warn("progress update failed", slog.String("job", job.ID), slog.Any("error", err))
		}
	}

	result, err := h.exec.ExecutePolicy(ctx, fileRec, schema, job.ID, onProgress)
	if err != nil {
		return err
	}
	if result.Path != job.FilePath {
		job.OutputPath = result.Path
	}
	return nil
}

func (h *processHandler) resolveFile(ctx context.Context, job *store.Job) (*store.File, error) {
	if job.FileID != nil {
		fileRec, err := h.store.GetFileByID(ctx, *job.FileID)
		if err != nil {
			return nil, err
		}
		if fileRec != nil {
			return fileRec, nil
		}
	}
	fileRec, err := h.store.GetFileByPath(ctx, job.FilePath)
	if err != nil {
		return nil, err
	}
	if fileRec == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "process",
			"file is not cataloged: "+job.FilePath, nil)
	}
	return fileRec, nil
}

type moveHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func (h *moveHandler) Type() store.JobType { return store.JobMove }

// Handle relocates a cataloged file and updates its row.
func (h *moveHandler) Handle(ctx context.Context, job *store.Job) error {
	if job.OutputPath == "" {
		return services.Wrap(services.ErrInput, "workflow", "move", "missing destination path", nil)
	}
	fileRec, err := h.store.GetFileByPath(ctx, job.FilePath)
	if err != nil {
		return err
	}
	if fileRec == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "move",
			"file is not cataloged: "+job.FilePath, nil)
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return services.Wrap(services.ErrFilesystem, "workflow", "move", job.OutputPath, err)
	}
	if err := fileutil.AtomicRename(job.FilePath, job.OutputPath); err != nil {
		return services.Wrap(services.ErrFilesystem, "workflow", "move", job.OutputPath, err)
	}
	return h.store.UpdateFilePath(ctx, fileRec.ID, job.OutputPath)
}
