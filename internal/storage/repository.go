package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spendlens/internal/core"
	"spendlens/internal/currency"
	"spendlens/internal/persistence"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ persistence.Persistence = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// serialize writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database file is still reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, amount, date, category, description, tags, frequency, priority, created_at, updated_at
		FROM expenses WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e                    core.Expense
			date, tags           string
			category, frequency  string
			priority             string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Amount, &date, &category, &e.Description,
			&tags, &frequency, &priority, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.UserID = userID
		e.Date = parseDate(date)
		e.Category = core.Category(category)
		e.Frequency = core.Frequency(frequency)
		e.Priority = core.Priority(priority)
		e.Tags = decodeTags(tags)
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// PutExpenses replaces the user's expenses in one transaction.
func (r *SQLiteRepository) PutExpenses(ctx context.Context, userID string, expenses []core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete expenses: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO expenses (user_id, id, position, title, amount, date, category, description, tags, frequency, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert expense: %w", err)
		}
		defer stmt.Close()

		for i, e := range expenses {
			tags, err := encodeTags(e.Tags)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, userID, e.ID, i, e.Title, e.Amount.String(), e.Date.String(),
				string(e.Category), e.Description, tags, string(e.Frequency), string(e.Priority),
				formatTime(e.CreatedAt), formatTime(e.UpdatedAt)); err != nil {
				return fmt.Errorf("insert expense %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, target_amount, current_amount, target_date, description, created_at, updated_at
		FROM goals WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		var (
			g                    core.Goal
			targetDate           string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&g.ID, &g.Title, &g.TargetAmount, &g.CurrentAmount, &targetDate,
			&g.Description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.UserID = userID
		g.TargetDate = parseDate(targetDate)
		g.CreatedAt = parseTime(createdAt)
		g.UpdatedAt = parseTime(updatedAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}

// PutGoals replaces the user's goals in one transaction.
func (r *SQLiteRepository) PutGoals(ctx context.Context, userID string, goals []core.Goal) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete goals: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO goals (user_id, id, position, title, target_amount, current_amount, target_date, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert goal: %w", err)
		}
		defer stmt.Close()

		for i, g := range goals {
			if _, err := stmt.ExecContext(ctx, userID, g.ID, i, g.Title, g.TargetAmount.String(),
				g.CurrentAmount.String(), g.TargetDate.String(), g.Description,
				formatTime(g.CreatedAt), formatTime(g.UpdatedAt)); err != nil {
				return fmt.Errorf("insert goal %s: %w", g.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetUser(ctx context.Context, email string) (core.User, error) {
	var (
		u         core.User
		code      string
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, monthly_budget, currency, created_at
		FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.MonthlyBudget, &code, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, persistence.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("query user: %w", err)
	}
	u.Currency = currency.Code(code)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (r *SQLiteRepository) PutUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, monthly_budget, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			password_hash = excluded.password_hash,
			monthly_budget = excluded.monthly_budget,
			currency = excluded.currency`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.MonthlyBudget.String(), string(u.Currency), formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("upsert user: %w", core.ErrDuplicateUser)
	}
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// isUniqueViolation reports a UNIQUE constraint failure. Conflicts on id
// are absorbed by the upsert, so on users this is always the email.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func encodeTags(tags []core.Tag) (string, error) {
	if tags == nil {
		tags = []core.Tag{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// decodeTags is lenient: a malformed column yields no tags.
func decodeTags(s string) []core.Tag {
	tags := []core.Tag{}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return []core.Tag{}
	}
	return tags
}

func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
