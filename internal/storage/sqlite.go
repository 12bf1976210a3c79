package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- time encoding ----
//
// Instants are stored as unix milliseconds (INTEGER). Zero times map to NULL
// so "never" stays distinguishable from the epoch.

func timeToMS(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func msToTime(ms sql.NullInt64) time.Time {
	if !ms.Valid || ms.Int64 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64).UTC()
}

// ---- reminders ----

const reminderCols = `id, user_id, chat_id, text, schedule_time, interval_days, status,
	next_notification, notification_count, max_notifications, notify_interval_min,
	last_message_id, created_at, updated_at`

func scanReminder(row interface{ Scan(...any) error }) (*Reminder, error) {
	var (
		r                Reminder
		status           string
		next             sql.NullInt64
		created, updated sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.ChatID, &r.Text, &r.ScheduleTime, &r.IntervalDays, &status,
		&next, &r.NotificationCount, &r.MaxNotifications, &r.NotifyIntervalMin,
		&r.LastMessageID, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = ReminderStatus(status)
	r.NextNotification = msToTime(next)
	r.CreatedAt = msToTime(created)
	r.UpdatedAt = msToTime(updated)
	return &r, nil
}

func (s *sqliteStore) CreateReminder(ctx context.Context, r *Reminder) (int64, error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.ChatID == 0 {
		r.ChatID = r.UserID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(user_id, chat_id, text, schedule_time, interval_days, status,
			next_notification, notification_count, max_notifications, notify_interval_min,
			last_message_id, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.UserID, r.ChatID, r.Text, r.ScheduleTime, r.IntervalDays, string(r.Status),
		timeToMS(r.NextNotification), r.NotificationCount, r.MaxNotifications, r.NotifyIntervalMin,
		r.LastMessageID, timeToMS(r.CreatedAt), timeToMS(r.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

func (s *sqliteStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	return scanReminder(row)
}

func (s *sqliteStore) ListRemindersByUser(ctx context.Context, userID int64, onlyActive bool) ([]*Reminder, error) {
	q := `SELECT ` + reminderCols + ` FROM reminders WHERE user_id = ?`
	args := []any{userID}
	if onlyActive {
		q += ` AND status = ?`
		args = append(args, string(StatusActive))
	}
	q += ` ORDER BY next_notification ASC, id ASC`
	return s.queryReminders(ctx, q, args...)
}

func (s *sqliteStore) ListActiveReminders(ctx context.Context) ([]*Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE status = ? ORDER BY next_notification ASC, id ASC`,
		string(StatusActive))
}

func (s *sqliteStore) queryReminders(ctx context.Context, q string, args ...any) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReminder rewrites every mutable column in one statement so compound
// transitions (confirm with repeat, reactivate) stay atomic.
func (s *sqliteStore) UpdateReminder(ctx context.Context, r *Reminder) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET text = ?, schedule_time = ?, interval_days = ?, status = ?,
			next_notification = ?, notification_count = ?, max_notifications = ?,
			notify_interval_min = ?, last_message_id = ?, updated_at = ?
		 WHERE id = ?`,
		r.Text, r.ScheduleTime, r.IntervalDays, string(r.Status),
		timeToMS(r.NextNotification), r.NotificationCount, r.MaxNotifications,
		r.NotifyIntervalMin, r.LastMessageID, timeToMS(r.UpdatedAt),
		r.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateReminderStatus(ctx context.Context, id int64, status ReminderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateLastMessageID(ctx context.Context, id int64, messageID int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET last_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateNextNotification(ctx context.Context, id int64, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_notification = ?, updated_at = ? WHERE id = ?`,
		timeToMS(next), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) IncrementNotificationCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE reminders SET notification_count = notification_count + 1, updated_at = ?
		 WHERE id = ? RETURNING notification_count`,
		time.Now().UTC().UnixMilli(), id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) CountRemindersByStatus(ctx context.Context) (map[ReminderStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM reminders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[ReminderStatus]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[ReminderStatus(st)] = n
	}
	return out, rows.Err()
}

// ---- users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	// Preferences is deliberately absent from the conflict clause: the lazy
	// re-upsert on every interaction must not erase what an admin stored.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, first_name, is_blocked, is_whitelisted, preferences, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			updated_at = excluded.updated_at`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName),
		boolToInt(u.IsBlocked), boolToInt(u.IsWhitelisted), nullStr(u.Preferences),
		timeToMS(u.CreatedAt), timeToMS(u.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, is_blocked, is_whitelisted, preferences, created_at, updated_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u                      User
		username, first, prefs sql.NullString
		blocked, listed        int
		created, updated       sql.NullInt64
	)
	err := row.Scan(&u.ID, &username, &first, &blocked, &listed, &prefs, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.IsBlocked = blocked != 0
	u.IsWhitelisted = listed != 0
	u.Preferences = prefs.String
	u.CreatedAt = msToTime(created)
	u.UpdatedAt = msToTime(updated)
	return &u, nil
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, first_name, is_blocked, is_whitelisted, preferences, created_at, updated_at
		 FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetUserBlocked(ctx context.Context, id int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = ?, updated_at = ? WHERE id = ?`,
		boolToInt(blocked), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetUserWhitelisted(ctx context.Context, id int64, listed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_whitelisted = ?, updated_at = ? WHERE id = ?`,
		boolToInt(listed), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetUserPreferences(ctx context.Context, id int64, prefs string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET preferences = ?, updated_at = ? WHERE id = ?`,
		nullStr(prefs), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- notification history ----

func (s *sqliteStore) AppendNotificationLog(ctx context.Context, e *NotificationEntry) (int64, error) {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_log(reminder_id, message_id, sent_at, response, responded_at)
		 VALUES(?,?,?,?,?)`,
		e.ReminderID, e.MessageID, timeToMS(e.SentAt), nullStr(e.Response), timeToMS(e.RespondedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// SetNotificationResponse marks the newest matching log entry. messageID 0
// matches the most recent entry for the reminder regardless of message.
func (s *sqliteStore) SetNotificationResponse(ctx context.Context, reminderID int64, messageID int, response string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	q := `UPDATE notification_log SET response = ?, responded_at = ?
		 WHERE id = (SELECT id FROM notification_log WHERE reminder_id = ?`
	args := []any{response, timeToMS(at), reminderID}
	if messageID != 0 {
		q += ` AND message_id = ?`
		args = append(args, messageID)
	}
	q += ` ORDER BY sent_at DESC, id DESC LIMIT 1)`
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *sqliteStore) ListNotificationLog(ctx context.Context, reminderID int64, limit int) ([]*NotificationEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reminder_id, message_id, sent_at, response, responded_at
		 FROM notification_log WHERE reminder_id = ?
		 ORDER BY sent_at DESC, id DESC LIMIT ?`,
		reminderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*NotificationEntry
	for rows.Next() {
		var (
			e               NotificationEntry
			resp            sql.NullString
			sent, responded sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ReminderID, &e.MessageID, &sent, &resp, &responded); err != nil {
			return nil, err
		}
		e.Response = resp.String
		e.SentAt = msToTime(sent)
		e.RespondedAt = msToTime(responded)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneNotificationLog(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE sent_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- helpers ----

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
