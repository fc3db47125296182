package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// RequestExporter pushes a request list to an external report
type RequestExporter interface {
	ExportRequests(ctx context.Context, views []models.RepairRequestView) (int, error)
}

var requestExporterInstance RequestExporter

// GetRequestExporter returns the configured exporter, or nil when reports are disabled
func GetRequestExporter() RequestExporter {
	return requestExporterInstance
}

// SetRequestExporter sets the process-wide exporter
func SetRequestExporter(e RequestExporter) {
	requestExporterInstance = e
}

// DefaultReportSheet is the tab the exporter overwrites
const DefaultReportSheet = "Requests"

var reportHeaders = []interface{}{
	"ID", "Client", "Technician", "Device", "Issue", "Status", "Created", "Updated", "Comments",
}

// SheetsExporter writes the request list into a Google spreadsheet
type SheetsExporter struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsExporter creates an exporter authenticated with a service account
// credentials file. Extra options are appended after the credentials.
func NewSheetsExporter(ctx context.Context, credentialsPath, spreadsheetID string, opts ...option.ClientOption) (*SheetsExporter, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if credentialsPath != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsPath)}, opts...)
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return &SheetsExporter{service: service, spreadsheetID: spreadsheetID, sheet: DefaultReportSheet}, nil
}

// ExportRequests replaces the report tab with a header row and one row per request
func (s *SheetsExporter) ExportRequests(ctx context.Context, views []models.RepairRequestView) (int, error) {
	_, err := s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, s.sheet+"!A:I", &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("unable to clear sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(views)+1)
	values = append(values, reportHeaders)
	for _, v := range views {
		values = append(values, reportRow(v))
	}

	_, err = s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, s.sheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("unable to write requests: %w", err)
	}

	log.Info().Int("rows", len(views)).Str("spreadsheet", s.spreadsheetID).Msg("exported requests to sheets")
	return len(views), nil
}

func reportRow(v models.RepairRequestView) []interface{} {
	technician := ""
	if v.TechnicianName != nil {
		technician = *v.TechnicianName
	}
	return []interface{}{
		strconv.FormatUint(uint64(v.ID), 10),
		v.ClientName,
		technician,
		v.Device,
		v.IssueDescription,
		string(v.Status),
		v.CreatedAt.UTC().Format(time.RFC3339),
		v.UpdatedAt.UTC().Format(time.RFC3339),
		len(v.Comments),
	}
}
