package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

// MemoryStore keeps jobs in process memory. Used by tests and by
// embedded callers that do not need durability.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*job.Job
	claims map[string]claim
}

type claim struct {
	owner string
	until time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*job.Job),
		claims: make(map[string]claim),
	}
}

func (s *MemoryStore) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = job.StatusPending
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.TotalItems = len(j.Items)
	s.jobs[j.ID] = copyJob(j)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) Save(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return job.ErrNotFound
	}
	j.UpdatedAt = time.Now().UTC()
	saved := copyJob(j)
	saved.CancelRequested = cur.CancelRequested
	s.jobs[j.ID] = saved
	return nil
}

func (s *MemoryStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.CancelRequested = true
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id, owner string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return job.ErrNotFound
	}
	c, held := s.claims[id]
	if held && c.owner != owner && time.Now().UTC().Before(c.until) {
		return job.ErrAlreadyRunning
	}
	s.claims[id] = claim{owner: owner, until: until.UTC()}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[id]; ok && c.owner == owner {
		delete(s.claims, id)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func copyJob(j *job.Job) *job.Job {
	out := *j
	out.Items = append([]string(nil), j.Items...)
	out.FailedItemRefs = append([]string(nil), j.FailedItemRefs...)
	if j.Options != nil {
		out.Options = make(job.Options, len(j.Options))
		for k, v := range j.Options {
			out.Options[k] = v
		}
	}
	return &out
}
