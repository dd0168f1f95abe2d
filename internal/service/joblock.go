package service

import "sync"

// JobLocks serializes state transitions per job id. No two transitions for
// the same job may apply concurrently; a redelivered callback racing a
// retry must observe the other's result, not overwrite it. Locks are also
// taken per record id during submission to keep the active-job check and
// job creation atomic.
type JobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewJobLocks() *JobLocks {
	return &JobLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the named entry and returns its unlock function.
func (l *JobLocks) Acquire(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
