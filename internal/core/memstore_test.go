package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the core tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]RegistryRecord
	jobs    map[uuid.UUID]*ImportJob

	truncates   int
	batches     int
	checkpoints int

	// rejectSIRET makes WriteBatch reject the records with these keys.
	rejectSIRET map[string]bool
	// batchErr fails every WriteBatch call when set.
	batchErr error
	// writeHook runs before each batch is applied, outside the lock.
	writeHook func(ctx context.Context) error
}

func newMemStore() *memStore {
	return &memStore{
		records:     make(map[string]RegistryRecord),
		jobs:        make(map[uuid.UUID]*ImportJob),
		rejectSIRET: make(map[string]bool),
	}
}

func (m *memStore) TruncateRegistry(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]RegistryRecord)
	m.truncates++
	return nil
}

func (m *memStore) WriteBatch(ctx context.Context, records []RegistryRecord, policy ConflictPolicy) ([]WriteOutcome, error) {
	if m.writeHook != nil {
		if err := m.writeHook(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	m.batches++

	out := make([]WriteOutcome, len(records))
	for i, rec := range records {
		key := rec.SIRET()
		if m.rejectSIRET[key] {
			out[i] = Rejected(errors.New("constraint violation"))
			continue
		}
		_, exists := m.records[key]
		switch {
		case !exists:
			m.records[key] = rec
			out[i] = WriteOutcome{Kind: OutcomeInserted}
		case policy == ConflictReplace:
			m.records[key] = rec
			out[i] = WriteOutcome{Kind: OutcomeUpdated}
		default:
			out[i] = WriteOutcome{Kind: OutcomeSkippedDuplicate}
		}
	}
	return out, nil
}

func (m *memStore) RegistryStats(ctx context.Context) (RegistryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RegistryStats{Total: int64(len(m.records))}, nil
}

func (m *memStore) record(siret string) (RegistryRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[siret]
	return rec, ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) CreateJob(ctx context.Context, job *ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) runningJob(id uuid.UUID) (*ImportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrImportNotFound
	}
	if job.Status != StatusRunning {
		return nil, ErrJobNotRunning
	}
	return job, nil
}

func (m *memStore) CheckpointJob(ctx context.Context, id uuid.UUID, counts JobCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.runningJob(id)
	if err != nil {
		return err
	}
	job.JobCounts = counts
	job.HeartbeatAt = time.Now()
	m.checkpoints++
	return nil
}

func (m *memStore) HeartbeatJob(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.runningJob(id)
	if err != nil {
		return err
	}
	job.HeartbeatAt = time.Now()
	return nil
}

func (m *memStore) FinalizeJob(ctx context.Context, id uuid.UUID, status JobStatus, counts JobCounts, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.runningJob(id)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = status
	job.JobCounts = counts
	job.ErrorMessage = message
	job.CompletedAt = &now
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrImportNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(ctx context.Context, limit int) ([]ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]ImportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.After(jobs[k].StartedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *memStore) MarkStaleJobs(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusRunning && j.HeartbeatAt.Before(cutoff) {
			now := time.Now()
			j.Status = StatusAbandoned
			j.ErrorMessage = message
			j.CompletedAt = &now
			n++
		}
	}
	return n, nil
}
