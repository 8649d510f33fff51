package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spendlens/internal/config"
	logx "spendlens/internal/log"
)

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	logger := SetupLogger(&config.Config{LogLevel: "debug"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = SetupLogger(nil)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestRunCleanupTimesOut(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.New(logx.Config{Output: &buf, Level: slog.LevelInfo})

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	runCleanup(logger, 20*time.Millisecond, func(ctx context.Context) {
		<-release
	})
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, buf.String(), "Shutdown timeout reached")
}

func TestRunCleanupCompletes(t *testing.T) {
	var buf bytes.Buffer
	logger := logx.New(logx.Config{Output: &buf, Level: slog.LevelInfo})

	ran := false
	runCleanup(logger, time.Second, func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		ran = hasDeadline
	})
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "Shutdown complete")
}

func TestNewSheetsExporterDisabled(t *testing.T) {
	exp, err := NewSheetsExporter(context.Background(), &config.Config{})
	assert.NoError(t, err)
	assert.Nil(t, exp)
}

func TestNewSheetsExporterMissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	exp, err := NewSheetsExporter(context.Background(), &config.Config{GoogleSpreadsheetID: "sheet-1"})
	assert.Error(t, err)
	assert.Nil(t, exp)
}
