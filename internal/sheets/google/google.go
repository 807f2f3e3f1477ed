package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"pagos/internal/core"
	ports "pagos/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	// Size of a freshly created ledger worksheet.
	defaultRows = 2000

	valueInputOption = "USER_ENTERED"

	// Cells are read raw so the spreadsheet locale never reaches the
	// parser: numbers come back as JSON numbers, dates as serials.
	valueRenderOption    = "UNFORMATTED_VALUE"
	dateTimeRenderOption = "SERIAL_NUMBER"

	// Largest serial Sheets can hold (9999-12-31).
	maxDateSerial = 2958465
)

// serialEpoch is day zero of spreadsheet date serials.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// dateHeaders marks the columns whose serials are rendered as ISO dates.
var dateHeaders = map[string]bool{
	core.Headers[core.ColRegistrationDate]: true,
	core.Headers[core.ColDueDate]:          true,
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.RowStore = (*Client)(nil)

// Options configures a Client. Service account credentials win over OAuth
// user credentials; CredentialsJSON wins over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	// OAuth client plus a token written by cmd/oauth-init.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS; otherwise GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE together with GOOGLE_OAUTH_TOKEN_FILE.
// Optional: GOOGLE_SHEET_NAME (default "Pagos").
func NewFromEnv(ctx context.Context) (*Client, error) {
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, Options{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: file,
		OAuthClientJSON: strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")),
		OAuthClientFile: strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")),
		OAuthTokenFile:  strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")),
	})
}

// New authenticates once and returns a client bound to one worksheet.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	auth, err := authOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully", "sheet", opts.SheetName)
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if sheetName == "" {
		sheetName = "Pagos"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func authOptions(ctx context.Context, opts Options) ([]goption.ClientOption, error) {
	slog.InfoContext(ctx, "Checking Google credentials",
		"has_service_account_json", opts.CredentialsJSON != "",
		"service_account_file", opts.CredentialsFile,
		"oauth_token_file", opts.OAuthTokenFile)

	switch {
	case opts.CredentialsJSON != "":
		return serviceAccount([]byte(opts.CredentialsJSON)), nil
	case opts.CredentialsFile != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return serviceAccount(b), nil
	case opts.OAuthTokenFile != "":
		client, err := oauthHTTPClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return []goption.ClientOption{goption.WithHTTPClient(client)}, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func serviceAccount(creds []byte) []goption.ClientOption {
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
}

// ReadAll returns every row of the worksheet, header first. Dates in the
// date columns come back as YYYY-MM-DD whatever the spreadsheet locale.
func (c *Client) ReadAll(ctx context.Context) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := quoteSheet(c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption(valueRenderOption).
		DateTimeRenderOption(dateTimeRenderOption).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([][]string, len(resp.Values))
	var dateCols map[int]bool
	for i, row := range resp.Values {
		if i == 0 {
			out[i] = toStrings(row, nil)
			dateCols = dateColumns(out[i])
			continue
		}
		out[i] = toStrings(row, dateCols)
	}
	return out, nil
}

// OverwriteAll replaces the worksheet content with rows.
//
// Everything is written by a single values.update call: rows and columns
// beyond the new table but inside the previous extent are sent as blank
// cells, so nobody reads a cleared or half-written sheet.
func (c *Client) OverwriteAll(ctx context.Context, rows [][]string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return errors.New("overwrite: missing header row")
	}
	current, err := c.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read current extent: %w", err)
	}

	height := max(len(rows), len(current))
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	for _, r := range current {
		width = max(width, len(r))
	}
	if err := c.ensureGrid(ctx, height, width); err != nil {
		return err
	}

	values := make([][]any, height)
	for i := range values {
		line := make([]any, width)
		for j := range line {
			line[j] = ""
		}
		if i < len(rows) {
			for j, cell := range rows[i] {
				line[j] = cell
			}
		}
		values[i] = line
	}

	rng := quoteSheet(c.sheetName) + "!A1"
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("overwrite %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Ledger overwritten", "sheet", c.sheetName, "rows", len(rows)-1, "cleared_rows", height-len(rows))
	return nil
}

// EnsureHeaders creates the worksheet with the header row when absent.
func (c *Client) EnsureHeaders(ctx context.Context, headers []string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	props, err := c.sheetProperties(ctx)
	if err != nil {
		return err
	}
	if props != nil {
		return nil
	}

	add := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{
			Title: c.sheetName,
			GridProperties: &gsheet.GridProperties{
				RowCount:    defaultRows,
				ColumnCount: int64(len(headers)),
			},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet %s: %w", c.sheetName, err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	rng := quoteSheet(c.sheetName) + "!A1"
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write headers %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Created ledger worksheet", "sheet", c.sheetName, "columns", len(headers))
	return nil
}

// sheetProperties returns the worksheet properties, or nil if it does not
// exist.
func (c *Client) sheetProperties(ctx context.Context) (*gsheet.SheetProperties, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			return sh.Properties, nil
		}
	}
	return nil, nil
}

// ensureGrid grows the worksheet so a rows x cols write fits.
func (c *Client) ensureGrid(ctx context.Context, rows, cols int) error {
	props, err := c.sheetProperties(ctx)
	if err != nil {
		return err
	}
	if props == nil {
		return fmt.Errorf("worksheet %s not found", c.sheetName)
	}
	var reqs []*gsheet.Request
	if grid := props.GridProperties; grid != nil {
		if extra := int64(rows) - grid.RowCount; extra > 0 {
			reqs = append(reqs, &gsheet.Request{AppendDimension: &gsheet.AppendDimensionRequest{
				SheetId: props.SheetId, Dimension: "ROWS", Length: extra,
			}})
		}
		if extra := int64(cols) - grid.ColumnCount; extra > 0 {
			reqs = append(reqs, &gsheet.Request{AppendDimension: &gsheet.AppendDimensionRequest{
				SheetId: props.SheetId, Dimension: "COLUMNS", Length: extra,
			}})
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("grow worksheet %s: %w", c.sheetName, err)
	}
	return nil
}

func dateColumns(header []string) map[int]bool {
	cols := make(map[int]bool)
	for i, h := range header {
		if dateHeaders[h] {
			cols[i] = true
		}
	}
	return cols
}

// toStrings renders unformatted cell values. Numbers never use exponent
// notation; numbers in dateCols are date serials.
func toStrings(in []interface{}, dateCols map[int]bool) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			if dateCols[i] {
				if d, ok := serialDate(n); ok {
					out[i] = d
					continue
				}
			}
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

// serialDate converts a date serial to YYYY-MM-DD, dropping the time of day.
func serialDate(serial float64) (string, bool) {
	if math.IsNaN(serial) || serial < 1 || serial > maxDateSerial {
		return "", false
	}
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial))).Format("2006-01-02"), true
}

// quoteSheet returns the A1 notation for a worksheet name.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
