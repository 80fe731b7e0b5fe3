package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"designqueue/internal/domain"
)

// OpenSQLite opens (creating if needed) the database at path and ensures the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
// created_at columns hold Unix nanoseconds so FCFS order survives a round trip exactly.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS schedule_tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  designer_id TEXT NOT NULL,
  requested_deadline TEXT,
  estimated_days INTEGER NOT NULL DEFAULT 0,
  actual_start_date TEXT,
  actual_end_date TEXT,
  priority TEXT NOT NULL CHECK(priority IN ('VIP','HIGH','NORMAL')) DEFAULT 'NORMAL',
  status TEXT NOT NULL CHECK(status IN ('QUEUED','WORK_STARTED','COMPLETED','EMERGENCY_PENDING')),
  created_at INTEGER NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedule_tasks_designer ON schedule_tasks(designer_id, status);
CREATE TABLE IF NOT EXISTS schedule_notifications (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  task_id TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedule_notifications_user ON schedule_notifications(user_id, seq DESC);
CREATE TABLE IF NOT EXISTS schedule_requesters (
  task_id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  requester_name TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}

type sqliteRepo struct {
	db        *sql.DB
	inboxSize int
}

func NewSQLiteRepo(db *sql.DB, inboxSize int) Repository {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &sqliteRepo{db: db, inboxSize: inboxSize}
}

func (r *sqliteRepo) Close() error { return r.db.Close() }

const taskColumns = `id,title,designer_id,requested_deadline,estimated_days,actual_start_date,actual_end_date,priority,status,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.ScheduleTask, error) {
	var t domain.ScheduleTask
	var createdAt int64
	if err := row.Scan(&t.ID, &t.Title, &t.DesignerID, &t.RequestedDeadline, &t.EstimatedDays,
		&t.ActualStartDate, &t.ActualEndDate, &t.Priority, &t.Status, &createdAt); err != nil {
		return domain.ScheduleTask{}, err
	}
	t.CreatedAt = time.Unix(0, createdAt)
	return t, nil
}

func (r *sqliteRepo) LoadTasks(ctx context.Context) ([]domain.ScheduleTask, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM schedule_tasks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.ScheduleTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *sqliteRepo) GetTask(ctx context.Context, id string) (domain.ScheduleTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM schedule_tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduleTask{}, ErrNotFound
	}
	return t, err
}

func (r *sqliteRepo) SaveTasks(ctx context.Context, tasks []domain.ScheduleTask) (err error) {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO schedule_tasks (`+taskColumns+`,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title,
  designer_id=excluded.designer_id,
  requested_deadline=excluded.requested_deadline,
  estimated_days=excluded.estimated_days,
  actual_start_date=excluded.actual_start_date,
  actual_end_date=excluded.actual_end_date,
  priority=excluded.priority,
  status=excluded.status,
  updated_at=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err = stmt.ExecContext(ctx, t.ID, t.Title, t.DesignerID, t.RequestedDeadline, t.EstimatedDays,
			t.ActualStartDate, t.ActualEndDate, string(t.Priority), string(t.Status), t.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (r *sqliteRepo) PushNotification(ctx context.Context, userID string, n domain.ScheduleNotification) (err error) {
	if n.ID == "" {
		n.ID = "ntf_" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO schedule_notifications (id,user_id,task_id,message,created_at) VALUES (?,?,?,?,?)`,
		n.ID, userID, n.TaskID, n.Message, n.CreatedAt.UnixNano()); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
DELETE FROM schedule_notifications
WHERE user_id = ? AND seq NOT IN (
  SELECT seq FROM schedule_notifications WHERE user_id = ? ORDER BY seq DESC LIMIT ?
)`, userID, userID, r.inboxSize); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteRepo) LoadNotifications(ctx context.Context, userID string) ([]domain.ScheduleNotification, error) {
	return loadNotifications(ctx, r.db, userID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadNotifications(ctx context.Context, q querier, userID string) ([]domain.ScheduleNotification, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id,task_id,message,created_at FROM schedule_notifications
WHERE user_id = ? ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]domain.ScheduleNotification, 0)
	for rows.Next() {
		var n domain.ScheduleNotification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.TaskID, &n.Message, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(0, createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *sqliteRepo) ClearNotifications(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedule_notifications WHERE user_id = ?`, userID)
	return err
}

func (r *sqliteRepo) DrainNotifications(ctx context.Context, userID string) (notes []domain.ScheduleNotification, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	notes, err = loadNotifications(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_notifications WHERE user_id = ?`, userID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *sqliteRepo) RecordRequester(ctx context.Context, req domain.ScheduleRequester) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO schedule_requesters (task_id,requester_id,requester_name) VALUES (?,?,?)
ON CONFLICT(task_id) DO UPDATE SET requester_id=excluded.requester_id, requester_name=excluded.requester_name`,
		req.TaskID, req.RequesterID, req.RequesterName)
	return err
}

func (r *sqliteRepo) GetRequester(ctx context.Context, taskID string) (domain.ScheduleRequester, bool, error) {
	var req domain.ScheduleRequester
	err := r.db.QueryRowContext(ctx, `
SELECT task_id,requester_id,requester_name FROM schedule_requesters WHERE task_id = ?`, taskID).
		Scan(&req.TaskID, &req.RequesterID, &req.RequesterName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduleRequester{}, false, nil
	}
	if err != nil {
		return domain.ScheduleRequester{}, false, err
	}
	return req, true, nil
}
