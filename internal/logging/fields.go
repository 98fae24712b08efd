package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for queue job identifiers.
	FieldJobID = "job_id"
	// FieldJobType is the standardized structured logging key for job types.
	FieldJobType = "job_type"
	// FieldFile is the standardized structured logging key for catalog file paths.
	FieldFile = "file"
	// FieldPhase is the standardized structured logging key for policy phase names.
	FieldPhase = "phase"
	// FieldOperation is the standardized structured logging key for operation kinds.
	FieldOperation = "operation"
	// FieldPolicy is the standardized structured logging key for policy names.
	FieldPolicy = "policy"
	// FieldEventType tags log records for machine filtering (stage_start, rollback, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested operator next step for warnings and errors.
	FieldErrorHint = "error_hint"
)
