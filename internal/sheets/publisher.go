// Package sheets publishes invoice snapshots and dashboard summaries to a
// Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/dashboard"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/pkg/models"
)

var (
	// ErrInvalidSheetURL is returned for URLs without a spreadsheet ID.
	ErrInvalidSheetURL = errors.New("invalid Google Sheets URL format")

	// ErrMissingCredentials is returned when no service account is configured.
	ErrMissingCredentials = errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// InvoiceHeaders are the column titles of a published invoice sheet.
var InvoiceHeaders = []string{
	"ID", "Invoice #", "Vendor", "Date", "Amount", "Tax", "Total",
	"Payment", "Source", "Processing", "Uploaded", "Published",
}

// Publisher writes snapshots into one spreadsheet.
type Publisher struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
	now           func() time.Time
}

// NewPublisher creates a publisher for the spreadsheet at sheetURL. Without
// client options the service account is read from
// GOOGLE_APPLICATION_CREDENTIALS (a file) or GOOGLE_CREDENTIALS (inline JSON).
func NewPublisher(ctx context.Context, sheetURL string, opts ...option.ClientOption) (*Publisher, error) {
	const op = "NewPublisher"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	if len(opts) == 0 {
		httpOpt, err := credentialsOption(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, httpOpt)
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Publisher{
		sheetsService: svc,
		spreadsheetID: spreadsheetID,
		log:           log,
		now:           time.Now,
	}, nil
}

func credentialsOption(ctx context.Context) (option.ClientOption, error) {
	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		data, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds = data
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, ErrMissingCredentials
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return option.WithHTTPClient(config.Client(ctx)), nil
}

// SpreadsheetID returns the target spreadsheet.
func (p *Publisher) SpreadsheetID() string {
	return p.spreadsheetID
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL.
func ExtractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidSheetURL
	}
	return matches[1], nil
}

// PublishInvoices replaces the contents of worksheet with the invoice list.
// It returns the number of data rows written.
func (p *Publisher) PublishInvoices(ctx context.Context, worksheet string, invoices []models.Invoice) (int, error) {
	const op = "PublishInvoices"

	p.log.Info().
		Str("sheet", worksheet).
		Int("rows", len(invoices)).
		Msg("Publishing invoices to Google Sheet")

	values := InvoiceValues(invoices, p.now())
	if err := p.replace(ctx, worksheet, values); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return len(invoices), nil
}

// PublishDashboard replaces the contents of worksheet with the dashboard.
func (p *Publisher) PublishDashboard(ctx context.Context, worksheet string, s dashboard.Summary) error {
	const op = "PublishDashboard"

	p.log.Info().Str("sheet", worksheet).Msg("Publishing dashboard to Google Sheet")

	if err := p.replace(ctx, worksheet, DashboardValues(s)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// replace clears worksheet, creating it when missing, and writes values
// from A1. The first row is formatted as a header.
func (p *Publisher) replace(ctx context.Context, worksheet string, values [][]interface{}) error {
	sheetID, err := p.ensureSheet(ctx, worksheet)
	if err != nil {
		return err
	}

	_, err = p.sheetsService.Spreadsheets.Values.Clear(
		p.spreadsheetID,
		worksheet,
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	resp, err := p.sheetsService.Spreadsheets.Values.Update(
		p.spreadsheetID,
		worksheet+"!A1",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write values: %w", err)
	}

	p.log.Info().
		Int64("rows_written", resp.UpdatedRows).
		Msg("Successfully wrote values to Google Sheet")

	columns := 0
	if len(values) > 0 {
		columns = len(values[0])
	}
	if err := p.formatHeaders(ctx, sheetID, int64(columns)); err != nil {
		p.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// ensureSheet returns the id of worksheet, adding it when it does not exist.
func (p *Publisher) ensureSheet(ctx context.Context, worksheet string) (int64, error) {
	spreadsheet, err := p.sheetsService.Spreadsheets.Get(p.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == worksheet {
			return sheet.Properties.SheetId, nil
		}
	}

	p.log.Info().Str("sheet", worksheet).Msg("Creating new sheet")

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: worksheet}}},
		},
	}
	resp, err := p.sheetsService.Spreadsheets.BatchUpdate(p.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("failed to create sheet: empty reply")
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// formatHeaders makes the header row bold and resizes the columns.
func (p *Publisher) formatHeaders(ctx context.Context, sheetID, columns int64) error {
	if columns == 0 {
		return nil
	}

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.9,
							Green: 0.9,
							Blue:  0.9,
						},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := p.sheetsService.Spreadsheets.BatchUpdate(p.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to format headers: %w", err)
	}
	return nil
}

// InvoiceValues converts invoices to sheet rows, header first. Invalid
// amounts are written as empty cells.
func InvoiceValues(invoices []models.Invoice, publishedAt time.Time) [][]interface{} {
	header := make([]interface{}, len(InvoiceHeaders))
	for i, h := range InvoiceHeaders {
		header[i] = h
	}

	stamp := publishedAt.Format(time.RFC3339)
	values := [][]interface{}{header}
	for _, inv := range invoices {
		values = append(values, []interface{}{
			inv.ID.String(),
			inv.InvoiceNumber,
			inv.VendorName,
			inv.InvoiceDate,
			amountValue(inv.Amount),
			amountValue(inv.TaxAmount),
			amountValue(inv.TotalAmount),
			inv.PaymentStatus,
			inv.SourceFile,
			inv.ProcessingStatus,
			inv.UploadTimestamp,
			stamp,
		})
	}
	return values
}

func amountValue(a models.Amount) interface{} {
	if !a.Valid {
		return ""
	}
	return a.Value.InexactFloat64()
}

// DashboardValues lays out the dashboard as label/value rows with a blank
// row between sections.
func DashboardValues(s dashboard.Summary) [][]interface{} {
	values := [][]interface{}{
		{"Metric", "Value"},
		{"Total Invoices", s.Totals.Count},
		{"Total Value", s.Totals.TotalValue.InexactFloat64()},
		{"Paid Invoices", s.Totals.PaidCount},
		{"Paid Value", s.Totals.PaidValue.InexactFloat64()},
		{"Pending Invoices", s.Totals.PendingCount},
		{"Pending Value", s.Totals.PendingValue.InexactFloat64()},
		{},
		{"Payment Status", "Invoices"},
	}
	for _, b := range s.Distribution {
		values = append(values, []interface{}{b.Name, b.Count})
	}

	values = append(values, []interface{}{}, []interface{}{"Vendor", "Invoices"})
	for _, v := range s.Vendors {
		values = append(values, []interface{}{v.Name, v.Count})
	}

	values = append(values, []interface{}{}, []interface{}{"Month", "Invoices"})
	for _, m := range s.Monthly {
		values = append(values, []interface{}{m.Month, m.Count})
	}
	return values
}
