package cli

import (
	"context"
	"fmt"

	"spendlens/internal/config"
	"spendlens/internal/export"
	gsheet "spendlens/internal/sheets/google"
)

// NewSheetsExporter returns the Google Sheets exporter, or nil when no
// spreadsheet is configured.
func NewSheetsExporter(ctx context.Context, cfg *config.Config) (export.Exporter, error) {
	if !cfg.SheetsEnabled() {
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	return client, nil
}
