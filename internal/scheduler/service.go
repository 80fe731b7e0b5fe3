package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"designqueue/internal/domain"
	"designqueue/internal/queue"
	"designqueue/internal/schedule"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Notifier receives every inbox notification for out-of-band delivery.
type Notifier interface {
	Notify(userID string, n domain.ScheduleNotification) bool
}

type Options struct {
	DefaultDesigner string
	// Rollover is a standard cron expression; empty disables the daily reschedule.
	Rollover string
	Notifier Notifier
}

// Service owns the read-compute-write cycle around the schedule engine.
// Every mutation holds the designer's lock from load to save, and only that
// designer's tasks are written back.
type Service struct {
	repo            queue.Repository
	engine          *schedule.Engine
	notifier        Notifier
	cron            *cron.Cron
	rollover        string
	defaultDesigner string
	locks           designerLocks
}

func NewService(repo queue.Repository, engine *schedule.Engine, opts Options) *Service {
	if opts.DefaultDesigner == "" {
		opts.DefaultDesigner = domain.DefaultDesignerID
	}
	return &Service{
		repo:            repo,
		engine:          engine,
		notifier:        opts.Notifier,
		cron:            cron.New(),
		rollover:        opts.Rollover,
		defaultDesigner: opts.DefaultDesigner,
	}
}

// Start re-anchors every stored queue to today and starts the rollover job.
func (s *Service) Start(ctx context.Context) error {
	if err := s.RescheduleAll(ctx); err != nil {
		return fmt.Errorf("initial reschedule: %w", err)
	}
	if s.rollover == "" {
		log.Info().Msg("schedule service started, rollover disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.rollover, func() { s.runRollover(ctx) }); err != nil {
		return fmt.Errorf("rollover schedule %q: %w", s.rollover, err)
	}
	s.cron.Start()
	log.Info().Str("rollover", s.rollover).Msg("schedule service started")
	return nil
}

func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) runRollover(ctx context.Context) {
	started := time.Now()
	if err := s.RescheduleAll(ctx); err != nil {
		log.Error().Err(err).Msg("rollover reschedule failed")
		return
	}
	log.Info().Dur("took", time.Since(started)).Msg("rollover reschedule done")
}

// Intake is a new work request as it arrives from the request form.
type Intake struct {
	DesignerID    string
	Title         string
	Deadline      domain.Day
	Priority      domain.Priority
	EstimatedDays int
	Emergency     bool
	RequesterID   string
	RequesterName string
}

// Submit creates a queued task, or a pending emergency when in.Emergency is set,
// and records who asked for it.
func (s *Service) Submit(ctx context.Context, in Intake) (domain.ScheduleTask, error) {
	designerID := in.DesignerID
	if designerID == "" {
		d, err := s.DefaultDesigner(ctx)
		if err != nil {
			return domain.ScheduleTask{}, err
		}
		designerID = d
	}
	var requester *domain.ScheduleRequester
	if in.RequesterID != "" {
		requester = &domain.ScheduleRequester{RequesterID: in.RequesterID, RequesterName: in.RequesterName}
	}

	op := func(tasks []domain.ScheduleTask) schedule.Result {
		if in.Emergency {
			return s.engine.AssignEmergency(tasks, designerID, in.Title, in.Deadline)
		}
		return s.engine.Assign(tasks, schedule.AssignRequest{
			DesignerID:    designerID,
			Title:         in.Title,
			Deadline:      in.Deadline,
			Priority:      in.Priority,
			EstimatedDays: in.EstimatedDays,
		})
	}
	res, err := s.mutate(ctx, designerID, op, requester, true)
	if err != nil {
		return domain.ScheduleTask{}, err
	}
	log.Info().
		Str("task_id", res.Task.ID).
		Str("designer_id", designerID).
		Str("status", string(res.Task.Status)).
		Str("start", res.Task.ActualStartDate.String()).
		Str("end", res.Task.ActualEndDate.String()).
		Msg("task submitted")
	return res.Task, nil
}

// Approve moves a pending emergency into its designer's queue.
func (s *Service) Approve(ctx context.Context, taskID string) (domain.ScheduleTask, error) {
	return s.mutateTask(ctx, taskID, "approve", s.engine.ApproveEmergency)
}

// Complete marks a task done and shifts the rest of the queue.
func (s *Service) Complete(ctx context.Context, taskID string) (domain.ScheduleTask, error) {
	return s.mutateTask(ctx, taskID, "complete", s.engine.Complete)
}

func (s *Service) mutateTask(ctx context.Context, taskID, action string, fn func([]domain.ScheduleTask, string) schedule.Result) (domain.ScheduleTask, error) {
	t, err := s.repo.GetTask(ctx, taskID)
	if errors.Is(err, queue.ErrNotFound) {
		return domain.ScheduleTask{}, ErrTaskNotFound
	}
	if err != nil {
		return domain.ScheduleTask{}, err
	}

	res, err := s.mutate(ctx, t.DesignerID, func(tasks []domain.ScheduleTask) schedule.Result {
		return fn(tasks, taskID)
	}, nil, true)
	if err != nil {
		return domain.ScheduleTask{}, err
	}
	switch res.Outcome {
	case schedule.NotFound:
		return domain.ScheduleTask{}, ErrTaskNotFound
	case schedule.Unchanged:
		return res.Task, fmt.Errorf("%w: cannot %s task in status %s", ErrInvalidTransition, action, res.Task.Status)
	}
	log.Info().Str("task_id", taskID).Str("designer_id", t.DesignerID).Str("action", action).Msg("task updated")
	return res.Task, nil
}

// RescheduleAll recomputes every designer's queue against today.
func (s *Service) RescheduleAll(ctx context.Context) error {
	tasks, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	for _, designerID := range schedule.DesignerIDs(tasks) {
		designerID := designerID
		_, err := s.mutate(ctx, designerID, func(tasks []domain.ScheduleTask) schedule.Result {
			return schedule.Result{Tasks: s.engine.Reschedule(tasks, designerID), Outcome: schedule.Applied}
		}, nil, false)
		if err != nil {
			return fmt.Errorf("reschedule designer %s: %w", designerID, err)
		}
	}
	return nil
}

// mutate runs op under the designer lock and persists the designer's tasks
// when op applied. announceShifts controls whether pure window moves are
// announced; status changes always are.
func (s *Service) mutate(ctx context.Context, designerID string, op func([]domain.ScheduleTask) schedule.Result, requester *domain.ScheduleRequester, announceShifts bool) (schedule.Result, error) {
	unlock := s.locks.lock(designerID)
	defer unlock()

	before, err := s.repo.LoadTasks(ctx)
	if err != nil {
		return schedule.Result{}, fmt.Errorf("load tasks: %w", err)
	}
	res := op(before)
	if res.Outcome != schedule.Applied {
		return res, nil
	}
	if err := s.repo.SaveTasks(ctx, schedule.ForDesigner(res.Tasks, designerID)); err != nil {
		return schedule.Result{}, fmt.Errorf("save tasks: %w", err)
	}
	if requester != nil {
		requester.TaskID = res.Task.ID
		if err := s.repo.RecordRequester(ctx, *requester); err != nil {
			return schedule.Result{}, fmt.Errorf("record requester: %w", err)
		}
	}
	s.announce(ctx, before, res.Tasks, designerID, announceShifts)
	return res, nil
}

type designerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *designerLocks) lock(designerID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[designerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[designerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
