// Package postgres is the Persistence adapter for a shared PostgreSQL
// database, used when several server instances serve the same users.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spendlens/internal/core"
	"spendlens/internal/currency"
	"spendlens/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL,
	password_hash  TEXT NOT NULL,
	monthly_budget NUMERIC NOT NULL DEFAULT 1000,
	currency       TEXT NOT NULL DEFAULT 'USD',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower ON users (lower(email));

CREATE TABLE IF NOT EXISTS expenses (
	user_id     TEXT NOT NULL,
	id          TEXT NOT NULL,
	position    INTEGER NOT NULL,
	title       TEXT NOT NULL,
	amount      NUMERIC NOT NULL,
	date        DATE,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	tags        TEXT[] NOT NULL DEFAULT '{}',
	frequency   TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS goals (
	user_id        TEXT NOT NULL,
	id             TEXT NOT NULL,
	position       INTEGER NOT NULL,
	title          TEXT NOT NULL,
	target_amount  NUMERIC NOT NULL,
	current_amount NUMERIC NOT NULL DEFAULT 0,
	target_date    DATE,
	description    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, id)
);`

type Store struct {
	pool *pgxpool.Pool
}

var _ persistence.Persistence = (*Store)(nil)

// Connect opens a pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, amount::text, COALESCE(to_char(date, 'YYYY-MM-DD'), ''), category,
		       description, tags, frequency, priority, created_at, updated_at
		FROM expenses WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e                             core.Expense
			amount, date                  string
			category, frequency, priority string
			tags                          []string
		)
		if err := rows.Scan(&e.ID, &e.Title, &amount, &date, &category, &e.Description,
			&tags, &frequency, &priority, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.UserID = userID
		e.Amount = parseAmount(amount)
		e.Date = parseDate(date)
		e.Category = core.Category(category)
		e.Frequency = core.Frequency(frequency)
		e.Priority = core.Priority(priority)
		e.Tags = make([]core.Tag, 0, len(tags))
		for _, t := range tags {
			e.Tags = append(e.Tags, core.Tag(t))
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) PutExpenses(ctx context.Context, userID string, expenses []core.Expense) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete expenses: %w", err)
		}
		batch := &pgx.Batch{}
		for i, e := range expenses {
			tags := make([]string, 0, len(e.Tags))
			for _, t := range e.Tags {
				tags = append(tags, string(t))
			}
			batch.Queue(`
				INSERT INTO expenses (user_id, id, position, title, amount, date, category, description, tags, frequency, priority, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::numeric, NULLIF($6, '')::date, $7, $8, $9, $10, $11, $12, $13)`,
				userID, e.ID, i, e.Title, e.Amount.String(), e.Date.String(), string(e.Category),
				e.Description, tags, string(e.Frequency), string(e.Priority), stamp(e.CreatedAt), stamp(e.UpdatedAt))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert expenses: %w", err)
		}
		return nil
	})
}

func (s *Store) GetGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, target_amount::text, current_amount::text,
		       COALESCE(to_char(target_date, 'YYYY-MM-DD'), ''), description, created_at, updated_at
		FROM goals WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		var (
			g                      core.Goal
			target, current, tdate string
		)
		if err := rows.Scan(&g.ID, &g.Title, &target, &current, &tdate, &g.Description,
			&g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.UserID = userID
		g.TargetAmount = parseAmount(target)
		g.CurrentAmount = parseAmount(current)
		g.TargetDate = parseDate(tdate)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) PutGoals(ctx context.Context, userID string, goals []core.Goal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM goals WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete goals: %w", err)
		}
		batch := &pgx.Batch{}
		for i, g := range goals {
			batch.Queue(`
				INSERT INTO goals (user_id, id, position, title, target_amount, current_amount, target_date, description, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, NULLIF($7, '')::date, $8, $9, $10)`,
				userID, g.ID, i, g.Title, g.TargetAmount.String(), g.CurrentAmount.String(),
				g.TargetDate.String(), g.Description, stamp(g.CreatedAt), stamp(g.UpdatedAt))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert goals: %w", err)
		}
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, email string) (core.User, error) {
	var (
		u            core.User
		budget, code string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, monthly_budget::text, currency, created_at
		FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &budget, &code, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, persistence.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("query user: %w", err)
	}
	u.MonthlyBudget = parseAmount(budget)
	u.Currency = currency.Code(code)
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u core.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, monthly_budget, currency, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			monthly_budget = EXCLUDED.monthly_budget,
			currency = EXCLUDED.currency`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.MonthlyBudget.String(), string(u.Currency), stamp(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("upsert user: %w", core.ErrDuplicateUser)
	}
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
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

// stamp maps the zero time to now, since the columns are NOT NULL.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
