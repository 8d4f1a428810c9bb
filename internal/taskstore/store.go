package taskstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ethermail_farm/internal/model"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrInvalidArgument = errors.New("invalid task arguments")
)

type task struct {
	id           string
	proxies      []string
	count        int
	delaySeconds float64
	status       model.TaskStatus
	createdAt    time.Time
	completed    int
	failed       int
	results      []model.CreatedAccount
	errs         []string
}

// Store is the in-memory registry of batch registration tasks. Tasks live
// for the process lifetime; there is no eviction.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task
}

func New() *Store {
	return &Store{tasks: make(map[string]*task)}
}

// Create registers a new pending task and returns its id. count must be
// positive and must not exceed the number of supplied proxies.
func (s *Store) Create(proxies []string, count int, delaySeconds float64) (string, error) {
	if len(proxies) == 0 {
		return "", fmt.Errorf("%w: no proxies provided", ErrInvalidArgument)
	}
	if count <= 0 {
		return "", fmt.Errorf("%w: count must be positive", ErrInvalidArgument)
	}
	if count > len(proxies) {
		return "", fmt.Errorf("%w: not enough proxies for requested account count", ErrInvalidArgument)
	}
	if delaySeconds < 0 {
		return "", fmt.Errorf("%w: delaySeconds must not be negative", ErrInvalidArgument)
	}

	t := &task{
		id:           uuid.NewString(),
		proxies:      append([]string(nil), proxies...),
		count:        count,
		delaySeconds: delaySeconds,
		status:       model.TaskPending,
		createdAt:    time.Now(),
	}

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()
	return t.id, nil
}

// Get returns a consistent snapshot of the task.
func (s *Store) Get(id string) (model.TaskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.TaskSnapshot{}, ErrNotFound
	}
	return t.snapshot(), nil
}

// Params returns the immutable execution parameters of a task.
func (s *Store) Params(id string) (proxies []string, count int, delaySeconds float64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, 0, 0, ErrNotFound
	}
	return append([]string(nil), t.proxies...), t.count, t.delaySeconds, nil
}

func (s *Store) MarkRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok && t.status == model.TaskPending {
		t.status = model.TaskInProgress
	}
}

func (s *Store) MarkCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.status = model.TaskCompleted
	}
}

// RecordSuccess increments the completed counter and appends the result.
// Safe to call from concurrently finishing work items.
func (s *Store) RecordSuccess(id string, res model.CreatedAccount) model.TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.TaskProgress{}
	}
	t.completed++
	t.results = append(t.results, res)
	return t.progress()
}

// RecordFailure increments the failed counter and appends the error text.
func (s *Store) RecordFailure(id string, msg string) model.TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.TaskProgress{}
	}
	t.failed++
	t.errs = append(t.errs, msg)
	return t.progress()
}

func (t *task) progress() model.TaskProgress {
	return model.TaskProgress{
		TaskID:    t.id,
		Status:    t.status,
		Total:     t.count,
		Completed: t.completed,
		Failed:    t.failed,
	}
}

func (t *task) snapshot() model.TaskSnapshot {
	snap := model.TaskSnapshot{
		ID:         t.id,
		Status:     t.status,
		CreatedAt:  t.createdAt,
		Total:      t.count,
		Completed:  t.completed,
		Failed:     t.failed,
		InProgress: t.count - (t.completed + t.failed),
	}
	// Results are withheld until the task settles; errors surface as soon
	// as any item fails.
	if t.status == model.TaskCompleted {
		snap.Results = append([]model.CreatedAccount(nil), t.results...)
	}
	if len(t.errs) > 0 {
		snap.Errors = append([]string(nil), t.errs...)
	}
	return snap
}
