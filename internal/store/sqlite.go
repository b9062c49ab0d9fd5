package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"atelierbot/internal/domain"
)

var ErrNotFound = errors.New("not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS customers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  phone TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  chat_id TEXT NOT NULL UNIQUE,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_customers_chat ON customers(chat_id);
CREATE TABLE IF NOT EXISTS feedback_tasks (
  id TEXT PRIMARY KEY,
  customer_id INTEGER NOT NULL,
  created_at DATETIME NOT NULL,
  scheduled_for DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','asking_pickup','completed','cancelled')),
  pickup_attempts INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY(customer_id) REFERENCES customers(id)
);
CREATE INDEX IF NOT EXISTS idx_feedback_due ON feedback_tasks(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_feedback_customer ON feedback_tasks(customer_id, created_at);
`
	_, err := db.Exec(schema)
	return err
}

type CustomerRepository interface {
	Upsert(ctx context.Context, phone, name, chatID string) error
	GetByPhone(ctx context.Context, phone string) (domain.Customer, error)
	GetByChatID(ctx context.Context, chatID string) (domain.Customer, error)
	GetByID(ctx context.Context, id int64) (domain.Customer, error)
	Count(ctx context.Context) (int, error)
	AllChatIDs(ctx context.Context) ([]string, error)
}

// TaskUpdate is a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Status         *domain.FeedbackStatus
	ScheduledFor   *time.Time
	PickupAttempts *int
}

type FeedbackRepository interface {
	CreateTask(ctx context.Context, customerID int64, createdAt, scheduledFor time.Time, status domain.FeedbackStatus) (domain.FeedbackTask, error)
	GetDueTasks(ctx context.Context, now time.Time) ([]domain.FeedbackTask, error)
	GetLatestTaskForCustomer(ctx context.Context, customerID int64, statuses ...domain.FeedbackStatus) (domain.FeedbackTask, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error
	UpdateTaskIfStatus(ctx context.Context, id string, expect domain.FeedbackStatus, u TaskUpdate) (bool, error)
}

type sqliteCustomers struct{ db *sql.DB }

func NewCustomerRepo(db *sql.DB) CustomerRepository { return &sqliteCustomers{db: db} }

func (r *sqliteCustomers) Upsert(ctx context.Context, phone, name, chatID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO customers (phone, name, chat_id) VALUES (?,?,?)
ON CONFLICT(phone) DO UPDATE SET name=excluded.name, chat_id=excluded.chat_id
`, phone, name, chatID)
	return err
}

const customerCols = `id, phone, name, chat_id, created_at`

func (r *sqliteCustomers) getOne(ctx context.Context, where string, arg any) (domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE `+where, arg)
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.ChatID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, ErrNotFound
		}
		return domain.Customer{}, err
	}
	return c, nil
}

func (r *sqliteCustomers) GetByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	return r.getOne(ctx, "phone=?", phone)
}

func (r *sqliteCustomers) GetByChatID(ctx context.Context, chatID string) (domain.Customer, error) {
	return r.getOne(ctx, "chat_id=?", chatID)
}

func (r *sqliteCustomers) GetByID(ctx context.Context, id int64) (domain.Customer, error) {
	return r.getOne(ctx, "id=?", id)
}

func (r *sqliteCustomers) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n)
	return n, err
}

func (r *sqliteCustomers) AllChatIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT chat_id FROM customers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type sqliteFeedback struct{ db *sql.DB }

func NewFeedbackRepo(db *sql.DB) FeedbackRepository { return &sqliteFeedback{db: db} }

const taskCols = `id, customer_id, created_at, scheduled_for, status, pickup_attempts`

func (r *sqliteFeedback) CreateTask(ctx context.Context, customerID int64, createdAt, scheduledFor time.Time, status domain.FeedbackStatus) (domain.FeedbackTask, error) {
	t := domain.FeedbackTask{
		ID:           "fbk_" + uuid.NewString(),
		CustomerID:   customerID,
		CreatedAt:    createdAt,
		ScheduledFor: scheduledFor,
		Status:       status,
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO feedback_tasks (id, customer_id, created_at, scheduled_for, status, pickup_attempts)
VALUES (?,?,?,?,?,0)
`, t.ID, t.CustomerID, t.CreatedAt, t.ScheduledFor, t.Status)
	if err != nil {
		return domain.FeedbackTask{}, err
	}
	return t, nil
}

func scanTask(row interface{ Scan(...any) error }) (domain.FeedbackTask, error) {
	var t domain.FeedbackTask
	err := row.Scan(&t.ID, &t.CustomerID, &t.CreatedAt, &t.ScheduledFor, &t.Status, &t.PickupAttempts)
	return t, err
}

func (r *sqliteFeedback) GetDueTasks(ctx context.Context, now time.Time) ([]domain.FeedbackTask, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskCols+` FROM feedback_tasks
WHERE status IN ('pending','asking_pickup') AND scheduled_for <= ?
ORDER BY scheduled_for ASC
`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.FeedbackTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *sqliteFeedback) GetLatestTaskForCustomer(ctx context.Context, customerID int64, statuses ...domain.FeedbackStatus) (domain.FeedbackTask, error) {
	q := `SELECT ` + taskCols + ` FROM feedback_tasks WHERE customer_id=?`
	args := []any{customerID}
	if len(statuses) > 0 {
		q += ` AND status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	t, err := scanTask(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeedbackTask{}, ErrNotFound
	}
	if err != nil {
		return domain.FeedbackTask{}, err
	}
	return t, nil
}

// UpdateTask applies a partial update. A missing id is a documented no-op,
// not an error.
func (r *sqliteFeedback) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	set, args := buildSet(u)
	if set == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE feedback_tasks SET `+set+` WHERE id=?`, append(args, id)...)
	return err
}

// UpdateTaskIfStatus applies the update only while the row still carries the
// expected status, so overlapping due-scans cannot advance a task twice.
// Returns whether the row matched.
func (r *sqliteFeedback) UpdateTaskIfStatus(ctx context.Context, id string, expect domain.FeedbackStatus, u TaskUpdate) (bool, error) {
	set, args := buildSet(u)
	if set == "" {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE feedback_tasks SET `+set+` WHERE id=? AND status=?`,
		append(args, id, expect)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func buildSet(u TaskUpdate) (string, []any) {
	var cols []string
	var args []any
	if u.Status != nil {
		cols = append(cols, "status=?")
		args = append(args, *u.Status)
	}
	if u.ScheduledFor != nil {
		cols = append(cols, "scheduled_for=?")
		args = append(args, *u.ScheduledFor)
	}
	if u.PickupAttempts != nil {
		cols = append(cols, "pickup_attempts=?")
		args = append(args, *u.PickupAttempts)
	}
	return strings.Join(cols, ", "), args
}
