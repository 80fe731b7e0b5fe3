package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"designqueue/internal/domain"
)

// memoryRepo keeps everything in process memory. It is used for the
// "memory" storage driver and in tests.
type memoryRepo struct {
	mu         sync.RWMutex
	inboxSize  int
	tasks      []domain.ScheduleTask
	index      map[string]int
	inboxes    map[string][]domain.ScheduleNotification
	requesters map[string]domain.ScheduleRequester
}

func NewMemoryRepo(inboxSize int) Repository {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &memoryRepo{
		inboxSize:  inboxSize,
		index:      make(map[string]int),
		inboxes:    make(map[string][]domain.ScheduleNotification),
		requesters: make(map[string]domain.ScheduleRequester),
	}
}

func (r *memoryRepo) LoadTasks(ctx context.Context) ([]domain.ScheduleTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ScheduleTask(nil), r.tasks...), nil
}

func (r *memoryRepo) GetTask(ctx context.Context, id string) (domain.ScheduleTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return domain.ScheduleTask{}, ErrNotFound
	}
	return r.tasks[i], nil
}

func (r *memoryRepo) SaveTasks(ctx context.Context, tasks []domain.ScheduleTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		if i, ok := r.index[t.ID]; ok {
			r.tasks[i] = t
			continue
		}
		r.index[t.ID] = len(r.tasks)
		r.tasks = append(r.tasks, t)
	}
	return nil
}

func (r *memoryRepo) PushNotification(ctx context.Context, userID string, n domain.ScheduleNotification) error {
	if n.ID == "" {
		n.ID = "ntf_" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inbox := append([]domain.ScheduleNotification{n}, r.inboxes[userID]...)
	if len(inbox) > r.inboxSize {
		inbox = inbox[:r.inboxSize]
	}
	r.inboxes[userID] = inbox
	return nil
}

func (r *memoryRepo) LoadNotifications(ctx context.Context, userID string) ([]domain.ScheduleNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(make([]domain.ScheduleNotification, 0, len(r.inboxes[userID])), r.inboxes[userID]...), nil
}

func (r *memoryRepo) ClearNotifications(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inboxes, userID)
	return nil
}

func (r *memoryRepo) DrainNotifications(ctx context.Context, userID string) ([]domain.ScheduleNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes := r.inboxes[userID]
	delete(r.inboxes, userID)
	if notes == nil {
		notes = make([]domain.ScheduleNotification, 0)
	}
	return notes, nil
}

func (r *memoryRepo) RecordRequester(ctx context.Context, req domain.ScheduleRequester) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requesters[req.TaskID] = req
	return nil
}

func (r *memoryRepo) GetRequester(ctx context.Context, taskID string) (domain.ScheduleRequester, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requesters[taskID]
	return req, ok, nil
}

func (r *memoryRepo) Close() error { return nil }
