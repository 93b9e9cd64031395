package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/config"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw   = "RAW"
	valueRenderText = "FORMATTED_VALUE"
)

var (
	errSpreadsheetIDRequired = errors.New("spreadsheet id is required")
	errClientNotInitialized  = errors.New("sheets client not initialized")
)

// Client wraps the Sheets v4 values API for one spreadsheet. Ranges are passed
// through in A1 notation; callers own the addressing.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// ValueRange is one rectangular write.
type ValueRange struct {
	Range  string
	Values [][]string
}

// NewClient creates a Sheets client authenticated with the configured GCP credentials.
func NewClient(ctx context.Context, gcp config.GCPConfig, spreadsheetID string, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	opts := append(clientOptions(gcp), option.WithScopes(gsheets.SpreadsheetsScope))
	opts = append(opts, extra...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	client, err := NewFromService(svc, spreadsheetID)
	if err != nil {
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "spreadsheet_id", client.spreadsheetID), "sheets client initialized")
	}
	return client, nil
}

// NewFromService wraps an existing service handle.
func NewFromService(svc *gsheets.Service, spreadsheetID string) (*Client, error) {
	id := strings.TrimSpace(spreadsheetID)
	if id == "" {
		return nil, errSpreadsheetIDRequired
	}
	if svc == nil {
		return nil, errClientNotInitialized
	}
	return &Client{svc: svc, spreadsheetID: id}, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// GetValues reads a range as display strings. Missing trailing cells are omitted by the API.
func (c *Client) GetValues(ctx context.Context, rng string) ([][]string, error) {
	if c == nil || c.svc == nil {
		return nil, errClientNotInitialized
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption(valueRenderText).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				cells[j] = fmt.Sprint(cell)
			}
		}
		out[i] = cells
	}
	return out, nil
}

// BatchUpdateValues writes every range in one request.
func (c *Client) BatchUpdateValues(ctx context.Context, data []ValueRange) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	if len(data) == 0 {
		return nil
	}
	req := &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: valueInputRaw,
		Data:             make([]*gsheets.ValueRange, 0, len(data)),
	}
	for _, d := range data {
		values := make([][]interface{}, len(d.Values))
		for i, row := range d.Values {
			cells := make([]interface{}, len(row))
			for j, cell := range row {
				cells[j] = cell
			}
			values[i] = cells
		}
		req.Data = append(req.Data, &gsheets.ValueRange{Range: d.Range, MajorDimension: "ROWS", Values: values})
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	return err
}

// Clear blanks the values in rng without touching formatting.
func (c *Client) Clear(ctx context.Context, rng string) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// Tabs lists the sheet titles in the spreadsheet.
func (c *Client) Tabs(ctx context.Context) ([]string, error) {
	if c == nil || c.svc == nil {
		return nil, errClientNotInitialized
	}
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s != nil && s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// AddTab creates a new sheet tab.
func (c *Client) AddTab(ctx context.Context, title string) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: title}},
		}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	return err
}

// Ping verifies the spreadsheet is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Tabs(ctx)
	if isNotFound(err) {
		return fmt.Errorf("spreadsheet %q does not exist", c.spreadsheetID)
	}
	return err
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
