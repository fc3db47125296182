package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

func testConfig() *config.Config {
	return &config.Config{
		GoEnv:           "test",
		JWTSecret:       testSecret,
		JWTIssuer:       "smartfix-test",
		JWTAudience:     "smartfix-clients",
		JWTTTL:          time.Hour,
		StatusPolicy:    "strict",
		RequireVerified: true,
		StoreTimeout:    5 * time.Second,
	}
}

// testEnv is one isolated API instance backed by an in-memory database
type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	cfg      *config.Config
	notifier *services.RecordingNotifier
	images   *services.MockImageService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, db.AutoMigrate(models.All()...), "Failed to migrate test database")

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		db:       setupTestDB(t),
		cfg:      testConfig(),
		notifier: services.NewRecordingNotifier(),
		images:   services.NewMockImageService(),
	}
	config.SetConfig(env.cfg)
	config.SetDB(env.db)
	services.SetNotifier(env.notifier)
	services.SetDenylist(nil)
	services.SetRequestExporter(nil)
	env.images.SetAsMockForTesting()

	env.router = newTestRouter(env.cfg)
	return env
}

// newTestRouter mounts the handlers under test the way the server does
func newTestRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/auth/register", Register)
	v1.POST("/auth/login", Login)
	v1.GET("/uploads/:filename", GetUploadedImage)

	protected := v1.Group("")
	protected.Use(middleware.EnsureValidToken(cfg))
	admin := middleware.RequireRole(models.RoleAdmin)

	protected.POST("/auth/logout", Logout)
	protected.GET("/auth/me", Me)

	protected.GET("/repair-requests", ListRepairRequests)
	protected.GET("/repair-requests/export", ExportRepairRequests)
	protected.POST("/repair-requests/import", admin, ImportRepairRequests)
	protected.GET("/repair-requests/technician/:id", ListTechnicianRequests)
	protected.GET("/repair-requests/:id", GetRepairRequest)
	protected.POST("/repair-requests", CreateRepairRequest)
	protected.PUT("/repair-requests/:id", UpdateRepairRequest)
	protected.DELETE("/repair-requests/:id", admin, DeleteRepairRequest)

	protected.GET("/comments/:id", ListComments)
	protected.POST("/comments", AddComment)
	protected.PUT("/comments/:id", EditComment)
	protected.DELETE("/comments/:id", admin, DeleteComment)

	protected.GET("/services", ListServices)
	protected.GET("/services/:id", GetService)
	protected.POST("/services", admin, CreateService)
	protected.PUT("/services/:id", admin, UpdateService)
	protected.DELETE("/services/:id", admin, DeleteService)

	protected.GET("/users", admin, ListUsers)
	protected.GET("/users/technicians", ListTechnicians)
	protected.GET("/users/:id", GetUser)
	protected.POST("/users", admin, CreateUser)
	protected.PUT("/users/:id", UpdateUser)
	protected.DELETE("/users/:id", admin, DeleteUser)
	protected.POST("/users/:id/avatar", UploadAvatar)

	protected.GET("/reports/summary", admin, Summary)
	protected.POST("/reports/sheets", admin, ExportToSheets)
	return router
}

func (env *testEnv) createUser(t *testing.T, name, email string, role models.Role) *models.User {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(hashed)

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: &hash,
		Role:         role,
		IsVerified:   true,
	}
	require.NoError(t, env.db.Create(user).Error)
	return user
}

func (env *testEnv) createRequest(t *testing.T, clientID uint, technicianID *uint, status models.Status) *models.RepairRequest {
	t.Helper()

	req := &models.RepairRequest{
		ClientID:         clientID,
		TechnicianID:     technicianID,
		Device:           "Pixel 7",
		IssueDescription: "cracked screen",
		Status:           status,
		Version:          1,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, env.db.Create(req).Error)
	return req
}

func (env *testEnv) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()

	issued, err := services.NewTokenService(env.cfg.JWTSecret, env.cfg.JWTIssuer, env.cfg.JWTAudience, time.Hour).Issue(user)
	require.NoError(t, err)
	return issued.Token
}

// do sends a request with an optional JSON body and bearer token
func (env *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, _ := json.Marshal(b)
			reader = bytes.NewBuffer(payload)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// decode parses the response envelope
func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "Response should be valid JSON: %s", w.Body.String())
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	response := decode(t, w)
	errBody, ok := response["error"].(map[string]interface{})
	require.True(t, ok, "expected an error envelope, got %s", w.Body.String())
	return errBody["code"].(string)
}

func dataList(t *testing.T, w *httptest.ResponseRecorder) []interface{} {
	t.Helper()

	data, ok := decode(t, w)["data"].([]interface{})
	require.True(t, ok, "expected a list, got %s", w.Body.String())
	return data
}

func dataObject(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	data, ok := decode(t, w)["data"].(map[string]interface{})
	require.True(t, ok, "expected an object, got %s", w.Body.String())
	return data
}

func uintPtr(v uint) *uint { return &v }
