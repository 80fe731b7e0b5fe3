package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"designqueue/internal/domain"
	"designqueue/internal/scheduler"
)

type Server struct {
	r   *chi.Mux
	svc *scheduler.Service
}

func NewServer(svc *scheduler.Service) http.Handler {
	return NewServerWithDebug(svc, false)
}

func NewServerWithDebug(svc *scheduler.Service, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, svc: svc}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", s.submitTask)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Post("/tasks/{id}/approve", s.approveTask)
		r.Post("/tasks/{id}/complete", s.completeTask)
		r.Post("/reschedule", s.reschedule)

		r.Get("/designers/{id}/calendar", s.calendar)
		r.Get("/designers/{id}/busy", s.busy)

		r.Get("/users/{id}/notifications", s.notifications)
		r.Delete("/users/{id}/notifications", s.clearNotifications)
	})

	// Debug routes (pprof)
	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Tasks(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	counts := map[domain.Status]int{
		domain.StatusQueued:           0,
		domain.StatusWorkStarted:      0,
		domain.StatusCompleted:        0,
		domain.StatusEmergencyPending: 0,
	}
	designers := make(map[string]struct{})
	for _, t := range tasks {
		counts[t.Status]++
		designers[t.DesignerID] = struct{}{}
	}
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)

	var b strings.Builder
	b.WriteString("designqueue_up 1\n")
	for _, st := range statuses {
		fmt.Fprintf(&b, "designqueue_tasks{status=%q} %d\n", st, counts[domain.Status(st)])
	}
	fmt.Fprintf(&b, "designqueue_designers %d\n", len(designers))

	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}

type submitReq struct {
	DesignerID    string     `json:"designer_id"`
	Title         string     `json:"title"`
	Deadline      domain.Day `json:"deadline"`
	Priority      string     `json:"priority"`
	Urgency       string     `json:"urgency"`
	EstimatedDays int        `json:"estimated_days"`
	Emergency     bool       `json:"emergency"`
	RequesterID   string     `json:"requester_id"`
	RequesterName string     `json:"requester_name"`
}

func (req submitReq) priority() domain.Priority {
	if req.Priority == "" && req.Urgency != "" {
		return domain.PriorityFromUrgency(domain.Urgency(req.Urgency))
	}
	return domain.ParsePriority(req.Priority)
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	task, err := s.svc.Submit(r.Context(), scheduler.Intake{
		DesignerID:    req.DesignerID,
		Title:         req.Title,
		Deadline:      req.Deadline,
		Priority:      req.priority(),
		EstimatedDays: req.EstimatedDays,
		Emergency:     req.Emergency,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Tasks(r.Context(), r.URL.Query().Get("designer_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.ScheduleTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) approveTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RescheduleAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Calendar(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) busy(w http.ResponseWriter, r *http.Request) {
	ranges, err := s.svc.BusyRanges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranges)
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	drain := false
	if v := r.URL.Query().Get("drain"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "drain must be a boolean", http.StatusBadRequest)
			return
		}
		drain = b
	}
	notes, err := s.svc.Notifications(r.Context(), chi.URLParam(r, "id"), drain)
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []domain.ScheduleNotification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearNotifications(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, scheduler.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
