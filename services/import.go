package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
	"gorm.io/gorm"
)

const importBatchSize = 100

// ImportRecord is one row of a bulk import. Identifiers are loosely typed
// because spreadsheets and hand-written JSON send both numbers and strings.
type ImportRecord struct {
	ClientID         interface{} `json:"clientId"`
	TechnicianID     interface{} `json:"technicianId"`
	Device           string      `json:"device"`
	IssueDescription string      `json:"issueDescription"`
	Status           string      `json:"status"`
	CreatedAt        string      `json:"createdAt"`
}

// ImportResult summarizes a bulk import. Rejected records are data, not errors.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

var errNotPositiveID = errors.New("not a positive integer")

// parseID returns the id, whether a value was present, and an error for
// values that are present but not positive integers.
func parseID(v interface{}) (uint, bool, error) {
	switch id := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if id <= 0 || id != math.Trunc(id) || id > math.MaxUint32 {
			return 0, true, errNotPositiveID
		}
		return uint(id), true, nil
	case int:
		if id <= 0 {
			return 0, true, errNotPositiveID
		}
		return uint(id), true, nil
	case uint:
		if id == 0 {
			return 0, true, errNotPositiveID
		}
		return id, true, nil
	case json.Number:
		return parseID(id.String())
	case string:
		s := strings.TrimSpace(id)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil || n == 0 {
			return 0, true, errNotPositiveID
		}
		return uint(n), true, nil
	}
	return 0, true, errNotPositiveID
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates (UTC midnight)
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

// Import validates every record, then stores the valid ones in a single batch
// transaction. The first failing check of a record is reported as
// "record N: reason" with N counted from 1.
func (l *RequestLedger) Import(ctx context.Context, records []ImportRecord) (*ImportResult, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	db := l.db.WithContext(ctx)
	roles, err := referencedRoles(db, records)
	if err != nil {
		return nil, classifyStoreError("import repair requests", err)
	}

	result := &ImportResult{Errors: []string{}}
	staged := make([]models.RepairRequest, 0, len(records))
	now := l.opts.Now()

	for i, rec := range records {
		req, reason := validateImportRecord(rec, roles, now)
		if reason != "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %s", i+1, reason))
			continue
		}
		staged = append(staged, req)
	}

	if len(staged) > 0 {
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&staged, importBatchSize).Error
		})
		if err != nil {
			return nil, classifyStoreError("import repair requests", err)
		}
	}
	result.Imported = len(staged)

	log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("bulk import finished")
	return result, nil
}

func validateImportRecord(rec ImportRecord, roles map[uint]models.Role, now time.Time) (models.RepairRequest, string) {
	clientID, present, err := parseID(rec.ClientID)
	if err != nil || !present {
		return models.RepairRequest{}, "clientId must be a positive integer"
	}
	if _, ok := roles[clientID]; !ok {
		return models.RepairRequest{}, fmt.Sprintf("client %d not found", clientID)
	}

	device := strings.TrimSpace(rec.Device)
	if device == "" {
		return models.RepairRequest{}, "device is required"
	}

	var technicianID *uint
	techID, present, err := parseID(rec.TechnicianID)
	if err != nil {
		return models.RepairRequest{}, "technicianId must be a positive integer"
	}
	if present {
		if role, ok := roles[techID]; !ok || role != models.RoleTechnician {
			return models.RepairRequest{}, fmt.Sprintf("technician %d not found or is not a technician", techID)
		}
		technicianID = &techID
	}

	status := models.StatusNew
	if strings.TrimSpace(rec.Status) != "" {
		parsed, ok := models.ParseStatus(rec.Status)
		if !ok {
			return models.RepairRequest{}, fmt.Sprintf("unknown status %q", rec.Status)
		}
		status = parsed
	}

	createdAt := now
	if strings.TrimSpace(rec.CreatedAt) != "" {
		parsed, err := ParseDate(rec.CreatedAt)
		if err != nil {
			return models.RepairRequest{}, fmt.Sprintf("invalid createdAt %q", rec.CreatedAt)
		}
		createdAt = parsed
	}

	return models.RepairRequest{
		ClientID:         clientID,
		TechnicianID:     technicianID,
		Device:           device,
		IssueDescription: strings.TrimSpace(rec.IssueDescription),
		Status:           status,
		Version:          1,
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}, ""
}

// referencedRoles loads the role of every user referenced by the import in one query
func referencedRoles(db *gorm.DB, records []ImportRecord) (map[uint]models.Role, error) {
	seen := map[uint]struct{}{}
	for _, rec := range records {
		for _, v := range []interface{}{rec.ClientID, rec.TechnicianID} {
			if id, present, err := parseID(v); err == nil && present {
				seen[id] = struct{}{}
			}
		}
	}

	roles := make(map[uint]models.Role, len(seen))
	if len(seen) == 0 {
		return roles, nil
	}
	ids := make([]uint, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	var users []models.User
	if err := db.Select("id", "role").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		roles[u.ID] = u.Role
	}
	return roles, nil
}

var csvColumns = []string{"id", "clientId", "clientName", "technicianId", "technicianName", "device", "issueDescription", "status", "createdAt"}

// ParseImportCSV reads import records from CSV with a header row. Columns are
// matched by name, case-insensitively; unknown columns are ignored.
func ParseImportCSV(r io.Reader) ([]ImportRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []ImportRecord{}, nil
	}
	if err != nil {
		return nil, ValidationError("invalid CSV header: %v", err)
	}

	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["clientid"]; !ok {
		return nil, ValidationError("CSV header must contain a clientId column")
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := []ImportRecord{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ValidationError("invalid CSV at line %d: %v", line, err)
		}
		rec := ImportRecord{
			ClientID:         field(row, "clientid"),
			Device:           field(row, "device"),
			IssueDescription: field(row, "issuedescription"),
			Status:           field(row, "status"),
			CreatedAt:        field(row, "createdat"),
		}
		if tech := field(row, "technicianid"); tech != "" {
			rec.TechnicianID = tech
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteRequestsCSV writes the export format, which ParseImportCSV reads back
func WriteRequestsCSV(w io.Writer, views []models.RepairRequestView) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return err
	}
	for _, v := range views {
		technicianID, technicianName := "", ""
		if v.TechnicianID != nil {
			technicianID = strconv.FormatUint(uint64(*v.TechnicianID), 10)
		}
		if v.TechnicianName != nil {
			technicianName = *v.TechnicianName
		}
		row := []string{
			strconv.FormatUint(uint64(v.ID), 10),
			strconv.FormatUint(uint64(v.ClientID), 10),
			v.ClientName,
			technicianID,
			technicianName,
			v.Device,
			v.IssueDescription,
			string(v.Status),
			v.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
