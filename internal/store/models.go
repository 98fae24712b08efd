package store

import "time"

// ScanStatus reflects the outcome of the most recent scan of a file.
type ScanStatus string

const (
	ScanPending ScanStatus = "pending"
	ScanOK      ScanStatus = "ok"
	ScanError   ScanStatus = "error"
	ScanMissing ScanStatus = "missing"
)

// File is one catalog row: a media file known to the library.
type File struct {
	ID          int64
	Path        string
	Size        int64
	ModifiedAt  *time.Time
	ContentHash string
	Container   string
	ScanStatus  ScanStatus
	ScanError   string
	ScannedAt   *time.Time
	ScanJobID   string
	TagsJSON    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Track is one media stream within a file. Index is the zero-based
// within-file position and is the stable identity across re-scans.
type Track struct {
	ID              int64
	FileID          int64
	Index           int
	Type            string
	Codec           string
	Language        string
	Title           string
	Default         bool
	Forced          bool
	Channels        int
	ChannelLayout   string
	Width           int
	Height          int
	FrameRate       string
	AvgFrameRate    string
	ColorTransfer   string
	ColorPrimaries  string
	ColorSpace      string
	ColorRange      string
	DurationSeconds float64
}

// JobType identifies the handler a queued job is dispatched to.
type JobType string

const (
	JobScan      JobType = "scan"
	JobApply     JobType = "apply"
	JobTranscode JobType = "transcode"
	JobMove      JobType = "move"
	JobProcess   JobType = "process"
	JobPrune     JobType = "prune"
)

var jobTypes = map[JobType]struct{}{
	JobScan:      {},
	JobApply:     {},
	JobTranscode: {},
	JobMove:      {},
	JobProcess:   {},
	JobPrune:     {},
}

// ValidJobType reports whether t is in the closed job type set.
func ValidJobType(t JobType) bool {
	_, ok := jobTypes[t]
	return ok
}

// JobStatus is the queue lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

const (
	// PriorityDefault is the midpoint of the 0..1000 range; lower values
	// claim first.
	PriorityDefault = 500
	PriorityMin     = 0
	PriorityMax     = 1000
)

// JobOrigin records which surface enqueued the job.
type JobOrigin string

const (
	OriginCLI    JobOrigin = "cli"
	OriginDaemon JobOrigin = "daemon"
)

// Job is one unit of queued work.
type Job struct {
	ID              string
	Type            JobType
	Status          JobStatus
	Priority        int
	FileID          *int64
	FilePath        string
	PolicyName      string
	PolicyJSON      string
	ProgressPercent float64
	ProgressJSON    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	WorkerPID       *int
	WorkerHeartbeat *time.Time
	OutputPath      string
	BackupPath      string
	ErrorMessage    string
	Origin          JobOrigin
	BatchID         string
	LogPath         string
}

// PlanStatus is the approval lifecycle state of a persisted plan.
type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
	PlanCanceled PlanStatus = "canceled"
	PlanApplied  PlanStatus = "applied"
)

// planTransitions is the closed transition table. Absent keys are terminal.
var planTransitions = map[PlanStatus][]PlanStatus{
	PlanPending:  {PlanApproved, PlanRejected, PlanCanceled},
	PlanApproved: {PlanApplied, PlanCanceled},
}

// CanTransition reports whether a plan may move from one status to another.
func CanTransition(from, to PlanStatus) bool {
	for _, allowed := range planTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Plan is persisted evaluator output held for approval or audit.
type Plan struct {
	ID            string
	FileID        *int64
	FilePath      string
	PolicyName    string
	PolicyVersion string
	JobID         string
	ActionsJSON   string
	ActionCount   int
	RequiresRemux bool
	Status        PlanStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OperationStatus is the audit state of one policy application.
type OperationStatus string

const (
	OpPending    OperationStatus = "PENDING"
	OpInProgress OperationStatus = "IN_PROGRESS"
	OpCompleted  OperationStatus = "COMPLETED"
	OpFailed     OperationStatus = "FAILED"
	OpRolledBack OperationStatus = "ROLLED_BACK"
)

// Operation is an audit entry for a policy application, independent of the
// plan approval lifecycle.
type Operation struct {
	ID          string
	FilePath    string
	Status      OperationStatus
	ActionsJSON string
	StartedAt   time.Time
	CompletedAt *time.Time
	BackupPath  string
}

// EncoderType classifies how a transcode ran.
type EncoderType string

const (
	EncoderHardware EncoderType = "hardware"
	EncoderSoftware EncoderType = "software"
	EncoderUnknown  EncoderType = "unknown"
)

// ProcessingStats is captured at most once per successful apply run.
type ProcessingStats struct {
	ID                int64
	FileID            int64
	JobID             string
	PolicyName        string
	SizeBefore        int64
	SizeAfter         int64
	VideoBefore       int
	VideoAfter        int
	AudioBefore       int
	AudioAfter        int
	SubtitleBefore    int
	SubtitleAfter     int
	RemovedCount      int
	PhaseTimingsJSON  string
	ActionResultsJSON string
	EncoderFPS        float64
	EncoderBitrate    string
	EncoderFrames     int64
	EncoderType       EncoderType
	HashBefore        string
	HashAfter         string
	CreatedAt         time.Time
}

// StatsSummary aggregates processing stats across the library.
type StatsSummary struct {
	FilesProcessed  int
	TotalSizeBefore int64
	TotalSizeAfter  int64
	BytesSaved      int64
	TracksRemoved   int
}

// PolicyStats aggregates processing stats for one policy.
type PolicyStats struct {
	PolicyName string
	Runs       int
	BytesSaved int64
}

// TranscriptionResult caches a plugin transcription for one track.
type TranscriptionResult struct {
	ID         int64
	TrackID    int64
	Language   string
	Confidence float64
	TrackType  string
	Transcript string
	CreatedAt  time.Time
}

// LanguageSegment is one timed span within a language analysis.
type LanguageSegment struct {
	Language  string
	StartTime float64
	EndTime   float64
}

// LanguageAnalysis caches the detected language mix for one track.
type LanguageAnalysis struct {
	ID              int64
	TrackID         int64
	PrimaryLanguage string
	Confidence      float64
	CreatedAt       time.Time
	Segments        []LanguageSegment
}

// TrackClassification caches a plugin classification (commentary,
// descriptive audio, and so on) for one track.
type TrackClassification struct {
	ID             int64
	TrackID        int64
	Classification string
	Confidence     float64
	CreatedAt      time.Time
}

// PluginAck records operator acknowledgment of a plugin at a given hash.
type PluginAck struct {
	PluginName     string
	PluginHash     string
	AcknowledgedAt time.Time
}

// PluginMetadata is one plugin's opaque enrichment record for a file.
type PluginMetadata struct {
	FileID      int64
	PluginName  string
	PayloadJSON string
	UpdatedAt   time.Time
}
