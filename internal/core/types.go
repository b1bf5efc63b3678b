package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportMode selects how a run treats the existing registry.
type ImportMode string

const (
	// ModeFull truncates the registry, then inserts every record.
	ModeFull ImportMode = "full"
	// ModeUpdate merges records by SIRET, replacing stale attributes.
	ModeUpdate ImportMode = "update"
	// ModeDepartments inserts the records of the requested departments only.
	ModeDepartments ImportMode = "departments"
)

// ParseImportMode parses a mode name. An empty name means ModeFull.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeUpdate:
		return ModeUpdate, nil
	case ModeDepartments, "departements":
		return ModeDepartments, nil
	}
	return "", fmt.Errorf("%w: %q (want full, update or departments)", ErrInvalidMode, s)
}

// Policy returns the conflict policy of the write strategy used by the mode.
func (m ImportMode) Policy() ConflictPolicy {
	if m == ModeUpdate {
		return ConflictReplace
	}
	return ConflictSkip
}

// Truncates reports whether the mode clears the registry before loading.
func (m ImportMode) Truncates() bool { return m == ModeFull }

// Exclusive reports whether the mode needs sole access to the registry.
func (m ImportMode) Exclusive() bool { return m == ModeFull }

// JobStatus is the persisted lifecycle state of an import job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusAbandoned JobStatus = "abandoned"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool { return s != StatusRunning && s != "" }

// JobCounts are the row counters of one run.
//
// TotalRows counts non-empty data lines. Imported and Updated count records
// written by the store; Skipped counts insert-only duplicates; Filtered counts
// records outside the department allow-list; Errors counts malformed lines,
// records without SIRET and records the store rejected.
type JobCounts struct {
	TotalRows int64 `json:"total_rows" yaml:"total_rows"`
	Imported  int64 `json:"imported_rows" yaml:"imported_rows"`
	Updated   int64 `json:"updated_rows" yaml:"updated_rows"`
	Skipped   int64 `json:"skipped_rows" yaml:"skipped_rows"`
	Filtered  int64 `json:"filtered_rows" yaml:"filtered_rows"`
	Errors    int64 `json:"errors" yaml:"errors"`
}

// Add folds a batch result into the counters.
func (c *JobCounts) Add(r BatchResult) {
	c.Imported += int64(r.Inserted)
	c.Updated += int64(r.Updated)
	c.Skipped += int64(r.Skipped)
	c.Errors += int64(r.Rejected)
}

// ImportJob is the persisted record of one import run.
type ImportJob struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	Filename     string     `json:"filename" yaml:"filename"`
	Mode         ImportMode `json:"mode" yaml:"mode"`
	Departments  []string   `json:"departments,omitempty" yaml:"departments,omitempty"`
	Status       JobStatus  `json:"status" yaml:"status"`
	JobCounts    `yaml:",inline"`
	ErrorMessage string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	HeartbeatAt  time.Time  `json:"heartbeat_at" yaml:"heartbeat_at"`
}

// Duration returns how long the job ran, or has been running as of now.
func (j ImportJob) Duration(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

// ImportRequest is the input of StartImport.
type ImportRequest struct {
	FilePath    string     `json:"filepath"`
	Mode        ImportMode `json:"mode"`
	Departments []string   `json:"departments,omitempty"`
}

// ConflictPolicy tells the store what to do when a SIRET already exists.
type ConflictPolicy int

const (
	// ConflictSkip leaves the stored record untouched.
	ConflictSkip ConflictPolicy = iota
	// ConflictReplace overwrites every non-key column with the incoming values.
	ConflictReplace
)

func (p ConflictPolicy) String() string {
	if p == ConflictReplace {
		return "upsert"
	}
	return "insert_only"
}

// OutcomeKind tags the result of writing one record.
type OutcomeKind int

const (
	OutcomeInserted OutcomeKind = iota
	OutcomeUpdated
	OutcomeSkippedDuplicate
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// WriteOutcome is the tagged result of writing one record.
// Reason is set only for OutcomeRejected.
type WriteOutcome struct {
	Kind   OutcomeKind
	Reason string
}

// Rejected builds a rejected outcome from the store error.
func Rejected(err error) WriteOutcome {
	return WriteOutcome{Kind: OutcomeRejected, Reason: err.Error()}
}

// BatchResult aggregates the outcomes of one batch.
type BatchResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
	// Reasons holds the first few rejection reasons for logging.
	Reasons []string
}

// RegistryStats summarizes the registry content.
type RegistryStats struct {
	Total        int64      `json:"total" yaml:"total"`
	Active       int64      `json:"active" yaml:"active"`
	Closed       int64      `json:"closed" yaml:"closed"`
	Headquarters int64      `json:"headquarters" yaml:"headquarters"`
	PostalCodes  int64      `json:"postal_codes" yaml:"postal_codes"`
	Departments  int64      `json:"departments" yaml:"departments"`
	LastImport   *ImportJob `json:"last_import,omitempty" yaml:"last_import,omitempty"`
}

// RegistryStore is the durable collection of registry records keyed by SIRET.
type RegistryStore interface {
	// TruncateRegistry removes every record.
	TruncateRegistry(ctx context.Context) error
	// WriteBatch writes the records in order inside one transaction and returns
	// one outcome per record. A record the store refuses is rolled back alone
	// and reported as OutcomeRejected. The error is reserved for failures that
	// affect the whole batch.
	WriteBatch(ctx context.Context, records []RegistryRecord, policy ConflictPolicy) ([]WriteOutcome, error)
	// RegistryStats counts the stored records.
	RegistryStats(ctx context.Context) (RegistryStats, error)
}

// JobStore persists import jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	// CheckpointJob stores running counts and refreshes the heartbeat.
	// Returns ErrJobNotRunning if the job left the running state.
	CheckpointJob(ctx context.Context, id uuid.UUID, counts JobCounts) error
	// HeartbeatJob refreshes the heartbeat only.
	// Returns ErrJobNotRunning if the job left the running state.
	HeartbeatJob(ctx context.Context, id uuid.UUID) error
	// FinalizeJob sets the terminal status, final counts and completion time.
	// Returns ErrJobNotRunning if the job left the running state.
	FinalizeJob(ctx context.Context, id uuid.UUID, status JobStatus, counts JobCounts, message string) error
	// GetJob returns ErrImportNotFound for unknown ids.
	GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	// ListJobs returns the most recent jobs first.
	ListJobs(ctx context.Context, limit int) ([]ImportJob, error)
	// MarkStaleJobs moves running jobs whose heartbeat is older than cutoff to
	// StatusAbandoned and returns how many were moved.
	MarkStaleJobs(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// Store is everything the import service needs from persistence.
type Store interface {
	RegistryStore
	JobStore
}

// RegistryLocker is implemented by stores that can coordinate imports across
// processes. Exclusive locks conflict with every other lock; shared locks
// only conflict with exclusive ones. ok is false when the lock is held
// elsewhere.
type RegistryLocker interface {
	TryLockRegistry(ctx context.Context, exclusive bool) (unlock func(), ok bool, err error)
}

// ImportPhase indicates the current stage of an import run.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseStreaming  ImportPhase = "streaming"
	PhaseFinalizing ImportPhase = "finalizing"
	PhaseCompleted  ImportPhase = "completed"
	PhaseFailed     ImportPhase = "failed"
	PhaseCancelled  ImportPhase = "cancelled"
)

// ImportProgress is the live, in-process view of a running import.
type ImportProgress struct {
	JobID      string      `json:"job_id"`
	Mode       ImportMode  `json:"mode"`
	Phase      ImportPhase `json:"phase"`
	FileName   string      `json:"filename"`
	LinesRead  int64       `json:"lines_read"`
	BytesRead  int64       `json:"bytes_read"`
	BytesTotal int64       `json:"bytes_total"`
	JobCounts
	Error string `json:"error,omitempty"`
}

// Percent returns byte-based progress (0-100).
func (p ImportProgress) Percent() int {
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int((p.BytesRead * 100) / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}
