// Package google mirrors expense snapshots into a Google spreadsheet, one
// tab per user and year.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendlens/internal/currency"
	"spendlens/internal/export"
	logx "spendlens/internal/log"
)

// DefaultSheetName is the tab base name used when none is configured.
const DefaultSheetName = "Expenses"

const maxTitleLen = 100

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *logx.Logger
}

var _ export.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with service account
// credentials. Inline JSON wins over the file; with neither set,
// GOOGLE_APPLICATION_CREDENTIALS is tried.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	credentials, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetName),
		logger:        logx.FromContext(context.Background()).WithComponent(logx.ComponentSheets),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Export replaces the contents of the snapshot owner's tab with the
// snapshot rows followed by a total line. The tab is created on first use.
func (c *Client) Export(ctx context.Context, s export.Snapshot) (export.Artifact, error) {
	if c.svc == nil {
		return export.Artifact{}, errors.New("sheets service not initialized")
	}
	title := sheetTitle(c.sheetBase, s.Email, s.GeneratedAt.Year())

	if err := c.ensureSheet(ctx, title); err != nil {
		return export.Artifact{}, err
	}

	quoted := quoteTitle(title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return export.Artifact{}, fmt.Errorf("clear sheet %s: %w", title, err)
	}

	values := valueRows(s)
	rng := fmt.Sprintf("%s!A1:%s%d", quoted, columnLetter(len(export.Header)), len(values))
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return export.Artifact{}, fmt.Errorf("update sheet %s: %w", title, err)
	}

	ref := rng
	if resp != nil && resp.UpdatedRange != "" {
		ref = resp.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Snapshot mirrored to spreadsheet",
		logx.FieldEmail, s.Email,
		logx.FieldCount, len(s.Rows),
		"range", ref)
	return export.Artifact{
		Name:        title,
		ContentType: "application/vnd.google-apps.spreadsheet",
		Ref:         ref,
	}, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created spreadsheet tab", "title", title)
	return nil
}

// valueRows lays out header, records and a closing total row. Amounts are
// written as plain numbers so the sheet can sum them.
func valueRows(s export.Snapshot) [][]any {
	out := make([][]any, 0, len(s.Rows)+2)
	header := make([]any, len(export.Header))
	for i, h := range export.Header {
		header[i] = h
	}
	out = append(out, header)

	for i, rec := range export.Records(s) {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		row[len(row)-1] = s.Rows[i].Converted.StringFixed(2)
		out = append(out, row)
	}

	total := make([]any, len(export.Header))
	for i := range total {
		total[i] = ""
	}
	total[0] = "Total (" + currency.Lookup(s.Currency).Code.String() + ")"
	total[len(total)-1] = s.Total.StringFixed(2)
	return append(out, total)
}

// sheetTitle returns "<year> <base> <owner>", keeping an existing year
// prefix on base and capping the length the API accepts.
func sheetTitle(base, owner string, year int) string {
	title := yearPrefixedName(base, year)
	if owner = strings.TrimSpace(owner); owner != "" {
		title += " " + owner
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return strconv.Itoa(year)
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// columnLetter maps 1 to A, 26 to Z, 27 to AA.
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
