package core

// import.go drives one import run: read → tokenize → map → filter →
// accumulate → write, with checkpoints, a heartbeat and a single terminal
// update.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/metrics"
)

// maxLoggedRowErrors bounds the row errors logged per import.
const maxLoggedRowErrors = 10

// timeCheckEvery is how many lines pass between wall-clock checkpoint checks.
const timeCheckEvery = 1000

type activeImport struct {
	job     ImportJob
	path    string
	filter  *DepartmentFilter
	cancel  context.CancelCauseFunc
	done    chan struct{}
	release func()
	log     *slog.Logger

	mu        sync.Mutex
	progress  ImportProgress
	listeners []chan ImportProgress
}

func (imp *activeImport) finished() bool {
	select {
	case <-imp.done:
		return true
	default:
		return false
	}
}

func (imp *activeImport) snapshot() ImportProgress {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.progress
}

func (imp *activeImport) subscribe() (<-chan ImportProgress, func()) {
	ch := make(chan ImportProgress, 10)

	imp.mu.Lock()
	defer imp.mu.Unlock()

	ch <- imp.progress
	if imp.finished() {
		close(ch)
		return ch, func() {}
	}
	imp.listeners = append(imp.listeners, ch)

	unsubscribe := func() {
		imp.mu.Lock()
		defer imp.mu.Unlock()
		for i, l := range imp.listeners {
			if l == ch {
				imp.listeners = append(imp.listeners[:i], imp.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// update applies fn to the progress and notifies listeners. Slow listeners
// miss intermediate updates.
func (imp *activeImport) update(fn func(p *ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.progress)
	for _, ch := range imp.listeners {
		select {
		case ch <- imp.progress:
		default:
		}
	}
}

// complete publishes the terminal progress and closes every listener.
// Terminal updates are delivered even to slow listeners by dropping their
// oldest queued update.
func (imp *activeImport) complete(fn func(p *ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.progress)
	for _, ch := range imp.listeners {
		select {
		case ch <- imp.progress:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- imp.progress
		}
		close(ch)
	}
	imp.listeners = nil
	close(imp.done)
}

// pipeline holds the per-run state owned by the import goroutine.
type pipeline struct {
	imp      *activeImport
	store    Store
	strategy WriteStrategy
	log      *slog.Logger

	counts         JobCounts
	linesRead      int64
	rowErrorsShown int
	lastCheckpoint time.Time
	counter        *CountingReader
}

// run executes one import and finalizes its job. It owns src.
func (s *Service) run(ctx context.Context, imp *activeImport, src io.ReadCloser, size int64) {
	defer s.wg.Done()
	defer imp.release()
	defer src.Close()
	defer s.forget(imp.job.ID)

	start := time.Now()
	metrics.IncJobStarted(string(imp.job.Mode))

	p := &pipeline{
		imp:            imp,
		store:          s.store,
		strategy:       StrategyForMode(s.store, imp.job.Mode),
		log:            imp.log,
		lastCheckpoint: start,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in import", "panic", r)
			s.finish(p, fmt.Errorf("internal error: %v", r), start)
		}
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeat(hbCtx, imp)

	err := s.execute(ctx, p, src, size)
	stopHeartbeat()
	s.finish(p, err, start)
}

// heartbeat refreshes the job heartbeat while the run is alive, so stalls in
// a single batch write do not look like a dead process. A job that left the
// running state elsewhere stops the run.
func (s *Service) heartbeat(ctx context.Context, imp *activeImport) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.store.HeartbeatJob(ctx, imp.job.ID)
			switch {
			case err == nil:
			case errors.Is(err, ErrJobNotRunning):
				imp.cancel(ErrJobNotRunning)
				return
			case ctx.Err() != nil:
				return
			default:
				imp.log.Warn("import heartbeat failed", "error", err)
			}
		}
	}
}

// execute streams the source into the registry. It returns nil at end of
// input, the cancellation cause when ctx is done, or the fatal error.
func (s *Service) execute(ctx context.Context, p *pipeline, src io.Reader, size int64) error {
	lines, counter, err := OpenSource(src, size, s.cfg.SourceEncoding)
	if err != nil {
		return err
	}
	p.counter = counter

	mapper, err := readHeader(lines)
	if err != nil {
		return err
	}
	if unmapped := mapper.UnmappedHeaders(); len(unmapped) > 0 {
		p.log.Debug("ignoring unmapped headers", "headers", unmapped)
	}
	p.log.Info("header mapped", "columns", mapper.BoundColumns(), "unmapped", len(mapper.UnmappedHeaders()))

	if !mapper.HasKey() {
		p.log.Warn("every row will be rejected", "error", ErrMissingKeyColumn)
	}

	// A file that cannot supply a single key leaves the registry as it is.
	if p.imp.job.Mode.Truncates() && mapper.HasKey() {
		if err := s.store.TruncateRegistry(ctx); err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("truncate registry: %w", err)
		}
		p.log.Info("registry truncated")
	}

	p.imp.update(func(pr *ImportProgress) { pr.Phase = PhaseStreaming })

	acc := NewAccumulator(s.cfg.BatchSize)
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		line, ok, lineErr := lines.Next()
		if !ok {
			break
		}
		p.linesRead++

		if lineErr != nil {
			p.counts.TotalRows++
			p.rowError(lines.Line(), lineErr)
		} else if !isBlank(line) {
			p.counts.TotalRows++
			if rec, err := parseRow(mapper, line); err != nil {
				p.rowError(lines.Line(), err)
			} else if !p.imp.filter.Allow(rec) {
				p.counts.Filtered++
				metrics.AddRows(metrics.OutcomeFiltered, 1)
			} else if batch := acc.Add(rec); batch != nil {
				if err := p.write(ctx, batch); err != nil {
					return err
				}
			}
		}

		if p.checkpointDue(int64(s.cfg.CheckpointEvery), s.cfg.HeartbeatInterval) {
			if err := p.checkpoint(ctx); err != nil {
				return err
			}
		}
	}
	if err := lines.Err(); err != nil {
		return err
	}

	if batch := acc.Flush(); batch != nil {
		if err := p.write(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// readHeader returns the mapper of the first non-empty line.
func readHeader(lines *LineReader) (*ColumnMapper, error) {
	for {
		line, ok, err := lines.Next()
		if !ok {
			if rerr := lines.Err(); rerr != nil {
				return nil, rerr
			}
			return nil, ErrMissingHeader
		}
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		if isBlank(line) {
			continue
		}
		fields, err := SplitLine(line)
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		return NewColumnMapper(fields), nil
	}
}

func isBlank(line string) bool { return strings.TrimSpace(line) == "" }

func parseRow(mapper *ColumnMapper, line string) (RegistryRecord, error) {
	fields, err := SplitLine(line)
	if err != nil {
		return RegistryRecord{}, err
	}
	return mapper.Map(fields)
}

func (p *pipeline) rowError(line int64, err error) {
	p.counts.Errors++
	metrics.AddRows(metrics.OutcomeInvalid, 1)
	if p.rowErrorsShown < maxLoggedRowErrors {
		p.rowErrorsShown++
		p.log.Warn("skipping malformed row", "line", line, "error", err)
	}
}

func (p *pipeline) write(ctx context.Context, batch []RegistryRecord) error {
	res, err := p.strategy.Write(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	p.counts.Add(res)
	if res.Rejected > 0 {
		p.log.Warn("records rejected by store", "rejected", res.Rejected, "reasons", res.Reasons)
	}

	p.imp.update(func(pr *ImportProgress) {
		pr.JobCounts = p.counts
		pr.LinesRead = p.linesRead
		pr.BytesRead = p.counter.BytesRead()
	})
	return nil
}

func (p *pipeline) checkpointDue(every int64, interval time.Duration) bool {
	if p.linesRead%every == 0 {
		return true
	}
	return p.linesRead%timeCheckEvery == 0 && time.Since(p.lastCheckpoint) >= interval
}

// checkpoint persists the running counts. Only losing the job is fatal;
// other failures are retried at the next checkpoint.
func (p *pipeline) checkpoint(ctx context.Context) error {
	p.lastCheckpoint = time.Now()
	err := p.store.CheckpointJob(ctx, p.imp.job.ID, p.counts)
	switch {
	case err == nil:
		metrics.IncCheckpoint()
		p.log.Debug("import checkpoint", "lines", p.linesRead, "imported", p.counts.Imported, "errors", p.counts.Errors)
	case errors.Is(err, ErrJobNotRunning):
		return err
	case ctx.Err() != nil:
		return context.Cause(ctx)
	default:
		p.log.Warn("import checkpoint failed", "error", err)
	}

	p.imp.update(func(pr *ImportProgress) {
		pr.JobCounts = p.counts
		pr.LinesRead = p.linesRead
		pr.BytesRead = p.counter.BytesRead()
	})
	return nil
}

// finish maps the run outcome to a terminal status and records it.
func (s *Service) finish(p *pipeline, runErr error, start time.Time) {
	imp := p.imp
	id := imp.job.ID

	status, phase, message := StatusCompleted, PhaseCompleted, ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, ErrImportCancelled), errors.Is(runErr, ErrServiceShuttingDown):
		status, phase, message = StatusCancelled, PhaseCancelled, runErr.Error()
	default:
		status, phase, message = StatusFailed, PhaseFailed, runErr.Error()
	}

	lost := errors.Is(runErr, ErrJobNotRunning)
	if lost {
		status = StatusAbandoned
		p.log.Warn("import job left the running state elsewhere, stopping without finalizing")
	} else {
		p.imp.update(func(pr *ImportProgress) { pr.Phase = PhaseFinalizing })

		ctx, cancel := context.WithTimeout(context.Background(), FinalizeTimeout)
		err := s.store.FinalizeJob(ctx, id, status, p.counts, message)
		cancel()
		if err != nil {
			p.log.Error("finalize import job", "status", status, "error", err)
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveJobFinished(string(imp.job.Mode), string(status), elapsed)

	attrs := []any{
		"status", status,
		"total_rows", p.counts.TotalRows,
		"imported", p.counts.Imported,
		"updated", p.counts.Updated,
		"skipped", p.counts.Skipped,
		"filtered", p.counts.Filtered,
		"errors", p.counts.Errors,
		"duration_ms", elapsed.Milliseconds(),
	}
	if status == StatusFailed {
		p.log.Error("import failed", append(attrs, "error", runErr)...)
	} else {
		p.log.Info("import finished", attrs...)
	}

	// Locks and the limiter slot go before waiters are woken.
	imp.release()

	var bytesRead int64
	if p.counter != nil {
		bytesRead = p.counter.BytesRead()
	}
	imp.complete(func(pr *ImportProgress) {
		pr.Phase = phase
		pr.JobCounts = p.counts
		pr.LinesRead = p.linesRead
		pr.BytesRead = bytesRead
		pr.Error = message
	})
}
