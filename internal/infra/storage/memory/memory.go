package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/taskguard/internal/core/domain"
	"github.com/vietddude/taskguard/internal/infra/storage"
)

// MemoryStorage backs every repository with process-local maps. A single
// mutex serializes writes, which also gives the per-key write ordering the
// lifecycle layer relies on.
type MemoryStorage struct {
	tasks       map[string]*domain.Task
	idempotency map[string]*idemEntry
	dlq         []*domain.DLQEntry
	mu          sync.RWMutex
}

type idemEntry struct {
	rec *domain.IdempotencyRecord
	// hardExpiry emulates the native TTL a real store would apply.
	hardExpiry time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:       make(map[string]*domain.Task),
		idempotency: make(map[string]*idemEntry),
	}
}

// -----------------------------------------------------------------------------
// Task Repository
// -----------------------------------------------------------------------------

type TaskRepo struct {
	store *MemoryStorage
}

func NewTaskRepo(store *MemoryStorage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tasks[task.TaskID]; ok {
		return storage.ErrAlreadyExists
	}
	cp := *task
	r.store.tasks[task.TaskID] = &cp
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.tasks[taskID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TaskRepo) Update(
	ctx context.Context,
	taskID string,
	mutate func(*domain.Task) error,
) (*domain.Task, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tasks[taskID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Mutate a copy so a failed mutator leaves the stored record intact.
	cp := *t
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	r.store.tasks[taskID] = &cp

	out := cp
	return &out, nil
}

// -----------------------------------------------------------------------------
// Idempotency Repository
// -----------------------------------------------------------------------------

type IdempotencyRepo struct {
	store *MemoryStorage
}

func NewIdempotencyRepo(store *MemoryStorage) *IdempotencyRepo {
	return &IdempotencyRepo{store: store}
}

func (r *IdempotencyRepo) Create(
	ctx context.Context,
	rec *domain.IdempotencyRecord,
	ttl time.Duration,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if e, ok := r.store.idempotency[rec.Key]; ok && time.Now().Before(e.hardExpiry) {
		return storage.ErrAlreadyExists
	}
	cp := *rec
	r.store.idempotency[rec.Key] = &idemEntry{
		rec:        &cp,
		hardExpiry: time.Now().Add(ttl),
	}
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.idempotency[key]
	if !ok || !time.Now().Before(e.hardExpiry) {
		return nil, storage.ErrNotFound
	}
	cp := *e.rec
	return &cp, nil
}

// -----------------------------------------------------------------------------
// DLQ Repository
// -----------------------------------------------------------------------------

type DLQRepo struct {
	store *MemoryStorage
}

func NewDLQRepo(store *MemoryStorage) *DLQRepo {
	return &DLQRepo{store: store}
}

func (r *DLQRepo) Add(ctx context.Context, entry *domain.DLQEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.dlq = append(r.store.dlq, &cp)
	return nil
}

func (r *DLQRepo) List(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.DLQEntry
	for _, e := range r.store.dlq {
		if e.CreatedAt.Before(since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *DLQRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.dlq), nil
}
