package integration

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// RepairRequestIntegrationTestSuite covers the request ledger, comments and bulk transfer endpoints
type RepairRequestIntegrationTestSuite struct {
	suite.Suite
	h          *testutil.Harness
	client     *models.User
	technician *models.User
	admin      *models.User
}

// SetupTest runs before each test
func (suite *RepairRequestIntegrationTestSuite) SetupTest() {
	testutil.MustSetTestEnvironment(suite.T())
	suite.h = testutil.NewHarness(suite.T())
	suite.client = suite.h.CreateUser(suite.T(), "Carol Client", "carol@example.com", models.RoleClient, true)
	suite.technician = suite.h.CreateUser(suite.T(), "Tom Tech", "tom@example.com", models.RoleTechnician, true)
	suite.admin = suite.h.CreateUser(suite.T(), "Ada Admin", "ada@example.com", models.RoleAdmin, true)
}

func (suite *RepairRequestIntegrationTestSuite) token(user *models.User) string {
	return suite.h.TokenFor(suite.T(), user)
}

func (suite *RepairRequestIntegrationTestSuite) createRequest(device string) models.RepairRequest {
	resp := suite.h.Do(suite.T(), http.MethodPost, "/repair-requests", suite.token(suite.client), map[string]string{
		"device":           device,
		"issueDescription": "does not turn on",
	})
	suite.Require().Equal(http.StatusCreated, resp.Status)
	var created models.RepairRequest
	resp.DecodeData(suite.T(), &created)
	return created
}

func (suite *RepairRequestIntegrationTestSuite) TestCreateAndGet() {
	t := suite.T()

	created := suite.createRequest("iPhone 14 Pro")
	assert.Equal(t, models.StatusNew, created.Status)
	assert.Equal(t, suite.client.ID, created.ClientID)
	assert.Nil(t, created.TechnicianID)
	assert.Equal(t, 1, created.Version)
	assert.Len(t, suite.h.Notifier.EventsOfType(services.EventRequestCreated), 1)

	resp := suite.h.Do(t, http.MethodGet, fmt.Sprintf("/repair-requests/%d", created.ID), suite.token(suite.client), nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	var view models.RepairRequestView
	resp.DecodeData(t, &view)
	assert.Equal(t, "Carol Client", view.ClientName)
	assert.Nil(t, view.TechnicianName)
	assert.Empty(t, view.Comments)
}

func (suite *RepairRequestIntegrationTestSuite) TestCreateValidation() {
	t := suite.T()

	resp := suite.h.Do(t, http.MethodPost, "/repair-requests", suite.token(suite.client), map[string]string{
		"device": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode())

	resp = suite.h.Do(t, http.MethodPost, "/repair-requests", suite.token(suite.technician), map[string]string{
		"device":           "Pixel 7",
		"issueDescription": "cracked screen",
	})
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func (suite *RepairRequestIntegrationTestSuite) TestVisibilityPerRole() {
	t := suite.T()
	other := suite.h.CreateUser(t, "Other Client", "other@example.com", models.RoleClient, true)
	created := suite.createRequest("Pixel 7")

	resp := suite.h.Do(t, http.MethodGet, fmt.Sprintf("/repair-requests/%d", created.ID), suite.token(other), nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = suite.h.Do(t, http.MethodGet, "/repair-requests", suite.token(other), nil)
	var list []models.RepairRequestView
	resp.DecodeData(t, &list)
	assert.Empty(t, list)

	resp = suite.h.Do(t, http.MethodGet, "/repair-requests", suite.token(suite.technician), nil)
	resp.DecodeData(t, &list)
	assert.Len(t, list, 1)
}

func (suite *RepairRequestIntegrationTestSuite) TestStatusWorkflow() {
	t := suite.T()
	created := suite.createRequest("Galaxy S21")
	tech := suite.token(suite.technician)
	path := fmt.Sprintf("/repair-requests/%d", created.ID)

	resp := suite.h.Do(t, http.MethodPut, path, tech, map[string]interface{}{
		"technicianId": suite.technician.ID,
		"status":       "InProgress",
	})
	suite.Require().Equal(http.StatusOK, resp.Status)
	var updated models.RepairRequest
	resp.DecodeData(t, &updated)
	assert.Equal(t, 2, updated.Version)

	// the strict policy never moves a request back to New
	resp = suite.h.Do(t, http.MethodPut, path, tech, map[string]interface{}{"status": "New"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	for _, status := range []string{"Ready", "Closed"} {
		resp = suite.h.Do(t, http.MethodPut, path, tech, map[string]interface{}{"status": status})
		assert.Equal(t, http.StatusOK, resp.Status, status)
	}

	changes := suite.h.Notifier.EventsOfType(services.EventRequestStatusChanged)
	suite.Require().Len(changes, 3)
	assert.Equal(t, models.StatusNew, changes[0].PreviousStatus)
	assert.Equal(t, models.StatusInProgress, changes[0].Status)

	resp = suite.h.Do(t, http.MethodGet, "/repair-requests?status=Closed", suite.token(suite.client), nil)
	var closed []models.RepairRequestView
	resp.DecodeData(t, &closed)
	suite.Require().Len(closed, 1)
	suite.Require().NotNil(closed[0].TechnicianName)
	assert.Equal(t, "Tom Tech", *closed[0].TechnicianName)

	resp = suite.h.Do(t, http.MethodGet, "/repair-requests?status=Broken", suite.token(suite.client), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode())
}

func (suite *RepairRequestIntegrationTestSuite) TestStaleVersion() {
	t := suite.T()
	created := suite.createRequest("iPad Air")
	path := fmt.Sprintf("/repair-requests/%d", created.ID)
	admin := suite.token(suite.admin)

	resp := suite.h.Do(t, http.MethodPut, path, admin, map[string]interface{}{"device": "iPad Air 5", "version": 1})
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = suite.h.Do(t, http.MethodPut, path, admin, map[string]interface{}{"device": "iPad Air 6", "version": 1})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, "CONFLICT", resp.ErrorCode())
}

func (suite *RepairRequestIntegrationTestSuite) TestComments() {
	t := suite.T()
	created := suite.createRequest("Pixel 7")
	tech := suite.token(suite.technician)
	client := suite.token(suite.client)

	resp := suite.h.Do(t, http.MethodPost, "/comments", client, map[string]interface{}{
		"repairRequestId": created.ID,
		"text":            "please hurry",
	})
	suite.Require().Equal(http.StatusCreated, resp.Status)
	var comment models.CommentView
	resp.DecodeData(t, &comment)
	assert.Equal(t, "Carol Client", comment.AuthorName)

	resp = suite.h.Do(t, http.MethodPut, fmt.Sprintf("/comments/%d", comment.ID), tech, map[string]string{"text": "hijacked"})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = suite.h.Do(t, http.MethodPut, fmt.Sprintf("/comments/%d", comment.ID), client, map[string]string{"text": "please hurry, thanks"})
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = suite.h.Do(t, http.MethodGet, fmt.Sprintf("/comments/%d", created.ID), tech, nil)
	var comments []models.CommentView
	resp.DecodeData(t, &comments)
	suite.Require().Len(comments, 1)
	assert.Equal(t, "please hurry, thanks", comments[0].Text)

	resp = suite.h.Do(t, http.MethodDelete, fmt.Sprintf("/comments/%d", comment.ID), suite.token(suite.admin), nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = suite.h.Do(t, http.MethodGet, fmt.Sprintf("/comments/%d", created.ID), client, nil)
	resp.DecodeData(t, &comments)
	assert.Empty(t, comments)
}

func (suite *RepairRequestIntegrationTestSuite) TestImportJSONAndTechnicianRange() {
	t := suite.T()
	admin := suite.token(suite.admin)

	records := []map[string]interface{}{
		{"clientId": suite.client.ID, "technicianId": suite.technician.ID, "device": "A", "status": "InProgress", "createdAt": "2026-01-10"},
		{"clientId": fmt.Sprint(suite.client.ID), "technicianId": suite.technician.ID, "device": "B", "status": "Ready", "createdAt": "2026-01-31T18:00:00Z"},
		{"clientId": suite.client.ID, "technicianId": suite.technician.ID, "device": "C", "status": "Closed", "createdAt": "2026-02-01"},
		{"clientId": 9999, "device": "D"},
		{"clientId": suite.client.ID, "technicianId": suite.client.ID, "device": "E"},
		{"clientId": suite.client.ID, "device": ""},
	}
	resp := suite.h.Do(t, http.MethodPost, "/repair-requests/import", admin, records)
	suite.Require().Equal(http.StatusOK, resp.Status)

	var result services.ImportResult
	resp.DecodeData(t, &result)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 3, result.Skipped)
	suite.Require().Len(result.Errors, 3)
	assert.True(t, strings.HasPrefix(result.Errors[0], "record 4:"))

	path := fmt.Sprintf("/repair-requests/technician/%d?from=2026-01-01&to=2026-01-31", suite.technician.ID)
	resp = suite.h.Do(t, http.MethodGet, path, suite.token(suite.technician), nil)
	suite.Require().Equal(http.StatusOK, resp.Status)
	var ranged []models.RepairRequestView
	resp.DecodeData(t, &ranged)
	assert.Len(t, ranged, 2)

	resp = suite.h.Do(t, http.MethodGet, path+"&status=Ready", suite.token(suite.admin), nil)
	resp.DecodeData(t, &ranged)
	suite.Require().Len(ranged, 1)
	assert.Equal(t, "B", ranged[0].Device)

	other := suite.h.CreateUser(t, "Olga", "olga@example.com", models.RoleTechnician, true)
	resp = suite.h.Do(t, http.MethodGet, path, suite.token(other), nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func (suite *RepairRequestIntegrationTestSuite) TestImportCSVAndExport() {
	t := suite.T()
	admin := suite.token(suite.admin)

	body := "clientId,device,issueDescription,status\n" +
		fmt.Sprintf("%d,Pixel 7,cracked screen,New\n", suite.client.ID) +
		fmt.Sprintf("%d,Moto G,,\n", suite.client.ID) +
		"abc,Nokia,broken,New\n"
	resp := suite.h.Send(t, http.MethodPost, "/repair-requests/import", admin, "text/csv", strings.NewReader(body))
	decoded := testutil.DecodeResponse(t, resp)
	resp.Body.Close()
	suite.Require().Equal(http.StatusOK, decoded.Status)

	var result services.ImportResult
	decoded.DecodeData(t, &result)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	resp = suite.h.Send(t, http.MethodGet, "/repair-requests/export?format=csv", admin, "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(resp.Body).ReadAll()
	suite.Require().NoError(err)
	suite.Require().Len(rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "clientName", rows[0][2])
	assert.Equal(t, "Carol Client", rows[1][2])

	resp2 := suite.h.Do(t, http.MethodGet, "/repair-requests/export?format=xml", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.Status)
}

func (suite *RepairRequestIntegrationTestSuite) TestImportRequiresAdmin() {
	t := suite.T()

	resp := suite.h.Do(t, http.MethodPost, "/repair-requests/import", suite.token(suite.technician), []map[string]interface{}{})

	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestRepairRequestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(RepairRequestIntegrationTestSuite))
}
