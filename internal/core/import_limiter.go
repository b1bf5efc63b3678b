package core

// import_limiter.go bounds the number of imports running in this process.
//
// Imports are long-lived, so a request that finds every slot taken is
// rejected at once with ErrTooManyImports instead of queueing. A slot is
// released only after the job row has been finalized.

import "sync"

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 2

// ImportLimiter is a semaphore over running imports.
type ImportLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewImportLimiter creates a limiter allowing maxConcurrent imports at once.
func NewImportLimiter(maxConcurrent int) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// TryAcquire takes a slot without blocking and reports whether it got one.
// Every successful call must be paired with Release.
func (l *ImportLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the configured limit.
func (l *ImportLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// ImportLimiterStatus is a snapshot of the limiter state.
type ImportLimiterStatus struct {
	Active        int `json:"active" yaml:"active"`
	Available     int `json:"available" yaml:"available"`
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
}

// Status returns the current limiter state for health reporting.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return ImportLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
