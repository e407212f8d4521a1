package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/xhad/vidrag/internal/models"
)

const DefaultTTL = time.Hour

// MemoryStore keeps jobs in process memory. Terminal jobs older than the TTL
// are swept periodically and are invisible to Get once expired.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
	ttl  time.Duration

	done chan struct{}
	once sync.Once
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &MemoryStore{
		jobs: make(map[string]models.Job),
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) Put(ctx context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job, time.Now()) {
		return models.Job{}, ErrNotFound
	}
	return job, nil
}

// Sweep deletes terminal jobs that expired before now and reports how many
// were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if s.expired(job, now) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) expired(job models.Job, now time.Time) bool {
	return job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
}

func (s *MemoryStore) sweepLoop() {
	interval := s.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
