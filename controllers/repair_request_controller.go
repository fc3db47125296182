package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
)

// CreateRepairRequestRequest represents the request body for opening a repair request.
// Clients omit clientId; administrators set it to create on behalf of a client.
type CreateRepairRequestRequest struct {
	ClientID         *uint  `json:"clientId"`
	TechnicianID     *uint  `json:"technicianId"`
	Device           string `json:"device"`
	IssueDescription string `json:"issueDescription"`
}

// UpdateRepairRequestRequest is a partial update; absent fields are unchanged
type UpdateRepairRequestRequest struct {
	Device           *string `json:"device"`
	IssueDescription *string `json:"issueDescription"`
	Status           *string `json:"status"`
	TechnicianID     *uint   `json:"technicianId"`
	ClearTechnician  bool    `json:"clearTechnician"`
	Version          *int    `json:"version"`
}

// statusQuery reads an optional status filter. "all" and "" mean no filter.
func statusQuery(c *gin.Context) (*models.Status, bool) {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, true
	}
	status, ok := models.ParseStatus(raw)
	if !ok {
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Unknown status %q", raw))
		return nil, false
	}
	return &status, true
}

// dateQuery reads an optional date bound. A plain date used as an upper bound
// covers that whole day.
func dateQuery(c *gin.Context, name string, upper bool) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := services.ParseDate(raw)
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid %s: use RFC3339 or YYYY-MM-DD", name))
		return nil, false
	}
	if upper && len(raw) == len("2006-01-02") {
		t = t.Add(24 * time.Hour)
	}
	return &t, true
}

// ListRepairRequests handles GET /api/v1/repair-requests - lists the requests visible to the caller
func ListRepairRequests(c *gin.Context) {
	status, ok := statusQuery(c)
	if !ok {
		return
	}

	views, err := requestService().List(c.Request.Context(), middleware.GetCaller(c), status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, views)
}

// GetRepairRequest handles GET /api/v1/repair-requests/:id
func GetRepairRequest(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	view, err := requestService().Get(c.Request.Context(), middleware.GetCaller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, view)
}

// ListTechnicianRequests handles GET /api/v1/repair-requests/technician/:id - a technician's work list
func ListTechnicianRequests(c *gin.Context) {
	technicianID, ok := idParam(c, "id")
	if !ok {
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	from, ok := dateQuery(c, "from", false)
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", true)
	if !ok {
		return
	}

	views, err := requestService().ListForTechnician(c.Request.Context(), middleware.GetCaller(c), technicianID, services.TechnicianQuery{
		Status: status,
		From:   from,
		To:     to,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, views)
}

// CreateRepairRequest handles POST /api/v1/repair-requests
func CreateRepairRequest(c *gin.Context) {
	var req CreateRepairRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	created, err := requestService().Create(c.Request.Context(), middleware.GetCaller(c), services.CreateInput{
		ClientID:         req.ClientID,
		TechnicianID:     req.TechnicianID,
		Device:           req.Device,
		IssueDescription: req.IssueDescription,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, created)
}

// UpdateRepairRequest handles PUT /api/v1/repair-requests/:id - accept, reject, progress or reassign
func UpdateRepairRequest(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateRepairRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	patch := services.RequestPatch{
		Device:           req.Device,
		IssueDescription: req.IssueDescription,
		TechnicianID:     req.TechnicianID,
		ClearTechnician:  req.ClearTechnician,
		Version:          req.Version,
	}
	if req.Status != nil {
		status, known := models.ParseStatus(*req.Status)
		if !known {
			respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Unknown status %q", *req.Status))
			return
		}
		patch.Status = &status
	}

	updated, err := requestService().Update(c.Request.Context(), middleware.GetCaller(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, updated)
}

// DeleteRepairRequest handles DELETE /api/v1/repair-requests/:id - removes the request and its comments
func DeleteRepairRequest(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	deleted, err := requestService().Delete(c.Request.Context(), middleware.GetCaller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"id": deleted})
}

// ImportRepairRequests handles POST /api/v1/repair-requests/import. The body is
// either a JSON array of records or a CSV document sent as text/csv.
func ImportRepairRequests(c *gin.Context) {
	var (
		records []services.ImportRecord
		err     error
	)
	if strings.HasPrefix(c.ContentType(), "text/csv") {
		records, err = services.ParseImportCSV(c.Request.Body)
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		decoder := json.NewDecoder(c.Request.Body)
		decoder.UseNumber()
		if err := decoder.Decode(&records); err != nil {
			respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "Body must be a JSON array of records")
			return
		}
	}

	result, err := requestService().Import(c.Request.Context(), middleware.GetCaller(c), records)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, result)
}

// ExportRepairRequests handles GET /api/v1/repair-requests/export?format=json|csv
func ExportRepairRequests(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" {
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "format must be json or csv")
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		return
	}

	views, err := requestService().List(c.Request.Context(), middleware.GetCaller(c), status)
	if err != nil {
		respondError(c, err)
		return
	}

	if format == "json" {
		respondOK(c, http.StatusOK, views)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="repair-requests.csv"`)
	c.Status(http.StatusOK)
	if err := services.WriteRequestsCSV(c.Writer, views); err != nil {
		_ = c.Error(err)
	}
}
