package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/config"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/logging"
	"github.com/google/uuid"
)

// FinalizeTimeout bounds the terminal job update, which runs on a fresh
// context once the import context is gone.
var FinalizeTimeout = 30 * time.Second

// RetainFinished is how long a finished import stays subscribable.
var RetainFinished = 5 * time.Minute

// Default and maximum page sizes of ListRecentImports.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// Service runs registry imports in the background and answers status
// queries about them.
type Service struct {
	store   Store
	cfg     config.ImportConfig
	limiter *ImportLimiter

	// registryLock keeps full imports apart from every other import in this
	// process. Stores implementing RegistryLocker extend it across processes.
	registryLock sync.RWMutex

	mu      sync.RWMutex
	imports map[uuid.UUID]*activeImport
	closing bool
	wg      sync.WaitGroup
}

// NewService creates a Service. Zero-valued import settings fall back to
// their defaults.
func NewService(store Store, cfg config.ImportConfig) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100000
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = time.Minute
	}

	return &Service{
		store:   store,
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.MaxConcurrent),
		imports: make(map[uuid.UUID]*activeImport),
	}
}

// StartImport validates the request, takes the registry lock and a
// concurrency slot, records the job and starts it in the background. It
// returns the job id before any row is read. On error no job row exists.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (uuid.UUID, error) {
	mode, err := ParseImportMode(string(req.Mode))
	if err != nil {
		return uuid.Nil, err
	}
	filter, err := NewDepartmentFilter(req.Departments)
	if err != nil {
		return uuid.Nil, err
	}
	if mode == ModeDepartments && filter == nil {
		return uuid.Nil, ErrDepartmentsRequired
	}
	if _, err := NormalizeEncoding(s.cfg.SourceEncoding); err != nil {
		return uuid.Nil, err
	}

	path, err := s.resolveSource(req.FilePath)
	if err != nil {
		return uuid.Nil, err
	}
	src, size, err := openSource(path)
	if err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		src.Close()
		return uuid.Nil, ErrServiceShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	started := false
	defer func() {
		if !started {
			src.Close()
			s.wg.Done()
		}
	}()

	release, err := s.acquire(ctx, mode)
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	job := ImportJob{
		ID:          uuid.New(),
		Filename:    filepath.Base(path),
		Mode:        mode,
		Departments: filter.Codes(),
		Status:      StatusRunning,
		StartedAt:   now,
		HeartbeatAt: now,
	}
	if err := s.store.CreateJob(ctx, &job); err != nil {
		release()
		return uuid.Nil, fmt.Errorf("create import job: %w", err)
	}

	base := context.Background()
	var stopTimeout context.CancelFunc = func() {}
	if s.cfg.Timeout > 0 {
		base, stopTimeout = context.WithTimeout(base, s.cfg.Timeout)
	}
	runCtx, cancel := context.WithCancelCause(base)

	imp := &activeImport{
		job:     job,
		path:    path,
		filter:  filter,
		cancel:  cancel,
		done:    make(chan struct{}),
		release: func() { stopTimeout(); release() },
		log:     logging.WithFields(ctx, "import_id", job.ID, "mode", mode),
		progress: ImportProgress{
			JobID:      job.ID.String(),
			Mode:       mode,
			Phase:      PhaseStarting,
			FileName:   job.Filename,
			BytesTotal: size,
		},
	}

	s.mu.Lock()
	s.imports[job.ID] = imp
	if s.closing {
		cancel(ErrServiceShuttingDown)
	}
	s.mu.Unlock()

	imp.log.Info("import started",
		"file", path,
		"bytes", size,
		"departments", job.Departments,
		"ip", GetIPAddressFromContext(ctx),
		"user_agent", GetUserAgentFromContext(ctx),
	)

	started = true
	go s.run(runCtx, imp, src, size)

	return job.ID, nil
}

// acquire takes the registry lock for mode and a limiter slot. The returned
// release func is idempotent.
func (s *Service) acquire(ctx context.Context, mode ImportMode) (func(), error) {
	exclusive := mode.Exclusive()

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	if exclusive {
		if !s.registryLock.TryLock() {
			return nil, fmt.Errorf("%w: a %s import needs sole access to the registry", ErrImportConflict, mode)
		}
		releases = append(releases, s.registryLock.Unlock)
	} else {
		if !s.registryLock.TryRLock() {
			return nil, fmt.Errorf("%w: a full import is running", ErrImportConflict)
		}
		releases = append(releases, s.registryLock.RUnlock)
	}

	if locker, ok := s.store.(RegistryLocker); ok {
		unlock, ok, err := locker.TryLockRegistry(ctx, exclusive)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("lock registry: %w", err)
		}
		if !ok {
			releaseAll()
			return nil, fmt.Errorf("%w: registry locked by another instance", ErrImportConflict)
		}
		releases = append(releases, unlock)
	}

	if !s.limiter.TryAcquire() {
		releaseAll()
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyImports, s.limiter.MaxConcurrent())
	}
	releases = append(releases, s.limiter.Release)

	return sync.OnceFunc(releaseAll), nil
}

// resolveSource returns the absolute, symlink-free path of a source file and
// checks it against the allowed directories.
func (s *Service) resolveSource(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrSourceUnreadable)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	if len(s.cfg.AllowedDirs) == 0 {
		return resolved, nil
	}
	for _, dir := range s.cfg.AllowedDirs {
		if withinDir(dir, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSourceNotAllowed, resolved)
}

func withinDir(dir, path string) bool {
	d, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		return false
	}
	if r, err := filepath.EvalSymlinks(d); err == nil {
		d = r
	}
	rel, err := filepath.Rel(d, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// openSource opens a regular file for reading and returns its size.
func openSource(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", ErrSourceUnreadable, path)
	}
	return f, info.Size(), nil
}

// GetImportStatus returns the persisted state of a job.
func (s *Service) GetImportStatus(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	return s.store.GetJob(ctx, id)
}

// ListRecentImports returns the most recent jobs first. limit <= 0 means
// DefaultHistoryLimit; it is capped at MaxHistoryLimit.
func (s *Service) ListRecentImports(ctx context.Context, limit int) ([]ImportJob, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.store.ListJobs(ctx, limit)
}

// CancelImport stops a running import of this process at its next line
// boundary. The job is finalized as cancelled with the counts reached.
func (s *Service) CancelImport(ctx context.Context, id uuid.UUID) error {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()

	if ok {
		if imp.finished() {
			return ErrJobNotRunning
		}
		imp.cancel(ErrImportCancelled)
		logging.FromContext(ctx).Info("import cancellation requested", "import_id", id)
		return nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == StatusRunning {
		return ErrImportNotActive
	}
	return ErrJobNotRunning
}

// SubscribeProgress returns a channel of live progress for an import of
// this process. The current state is sent at once; the channel is closed
// when the import finishes. Call unsubscribe when done listening.
func (s *Service) SubscribeProgress(id uuid.UUID) (<-chan ImportProgress, func(), error) {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrImportNotActive
	}
	ch, unsubscribe := imp.subscribe()
	return ch, unsubscribe, nil
}

// Progress returns the live progress of an import of this process.
func (s *Service) Progress(id uuid.UUID) (ImportProgress, error) {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()

	if !ok {
		return ImportProgress{}, ErrImportNotActive
	}
	return imp.snapshot(), nil
}

// WaitForImport blocks until the import finishes or ctx is done, then
// returns the persisted job.
func (s *Service) WaitForImport(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()

	if ok {
		select {
		case <-imp.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.store.GetJob(ctx, id)
}

// RegistryStats returns registry counts and the most recent import.
func (s *Service) RegistryStats(ctx context.Context) (RegistryStats, error) {
	stats, err := s.store.RegistryStats(ctx)
	if err != nil {
		return RegistryStats{}, fmt.Errorf("registry stats: %w", err)
	}
	jobs, err := s.store.ListJobs(ctx, 1)
	if err != nil {
		return RegistryStats{}, fmt.Errorf("last import: %w", err)
	}
	if len(jobs) > 0 {
		stats.LastImport = &jobs[0]
	}
	return stats, nil
}

// ActiveImports returns the number of imports running in this process.
func (s *Service) ActiveImports() int {
	return s.limiter.ActiveCount()
}

// LimiterStatus returns the concurrency limiter state.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Shutdown rejects new imports, cancels running ones and waits until they
// are finalized or ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, imp := range s.imports {
		imp.cancel(ErrServiceShuttingDown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for imports to stop: %w", ctx.Err())
	}
}

// forget drops a finished import from tracking after RetainFinished.
func (s *Service) forget(id uuid.UUID) {
	time.AfterFunc(RetainFinished, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}
