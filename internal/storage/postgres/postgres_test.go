package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlens/internal/core"
	"spendlens/internal/persistence"
)

func TestParseHelpers(t *testing.T) {
	assert.True(t, parseAmount("12.345").Equal(decimal.RequireFromString("12.345")))
	assert.True(t, parseAmount("NaN").IsZero())
	assert.Equal(t, core.NewDate(2024, 2, 29), parseDate("2024-02-29"))
	assert.True(t, parseDate("").IsEmpty())

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, time.UTC, stamp(ts).Location())
	assert.False(t, stamp(time.Time{}).IsZero())
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower"}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("exec: %w", dup)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
	assert.False(t, isUniqueViolation(nil))
}

// TestStoreIntegration runs against a live database when
// SPENDLENS_TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("SPENDLENS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SPENDLENS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	userID := "it-" + time.Now().Format("150405.000000")
	in := []core.Expense{{
		ID: "e1", Title: "Coffee", Amount: decimal.RequireFromString("4.50"),
		Date: core.NewDate(2024, 1, 10), Tags: []core.Tag{core.Essential},
	}}
	require.NoError(t, s.PutExpenses(ctx, userID, in))
	got, err := s.GetExpenses(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("4.50")))
	assert.Equal(t, []core.Tag{core.Essential}, got[0].Tags)

	require.NoError(t, s.PutExpenses(ctx, userID, nil))
	got, err = s.GetExpenses(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetUser(ctx, userID+"@missing.test")
	assert.ErrorIs(t, err, persistence.ErrUserNotFound)
}
