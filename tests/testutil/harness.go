package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/routes"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestSecret signs every token issued by the harness
const TestSecret = "this-is-a-test-secret-with-32-bytes!"

// TestPassword is the password of every user created by CreateUser
const TestPassword = "password123"

// TestConfig returns a configuration suitable for in-process servers
func TestConfig() *config.Config {
	return &config.Config{
		GoEnv:           "test",
		Port:            "8080",
		LogLevel:        "error",
		JWTSecret:       TestSecret,
		JWTIssuer:       "smartfix-test",
		JWTAudience:     "smartfix-clients",
		JWTTTL:          time.Hour,
		StatusPolicy:    "strict",
		RequireVerified: true,
		StoreTimeout:    5 * time.Second,
	}
}

// NewTestDB opens a migrated in-memory sqlite database
func NewTestDB(t *testing.T) *gorm.DB {
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

// Harness is a full API served over HTTP from an in-memory database
type Harness struct {
	Server   *httptest.Server
	DB       *gorm.DB
	Config   *config.Config
	Notifier *services.RecordingNotifier
	Images   *services.MockImageService
}

// NewHarness starts a server with the production router over an in-memory
// database. It is closed on test cleanup.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return NewHarnessWithDB(t, NewTestDB(t))
}

// NewHarnessWithDB starts a server with the production router over db
func NewHarnessWithDB(t *testing.T, db *gorm.DB) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &Harness{
		DB:       db,
		Config:   TestConfig(),
		Notifier: services.NewRecordingNotifier(),
		Images:   services.NewMockImageService(),
	}
	config.SetConfig(h.Config)
	config.SetDB(h.DB)
	services.SetNotifier(h.Notifier)
	services.SetDenylist(nil)
	services.SetRequestExporter(nil)
	h.Images.SetAsMockForTesting()

	h.Server = httptest.NewServer(routes.NewRouter(h.Config))
	t.Cleanup(h.Server.Close)
	return h
}

// URL returns the absolute URL of an /api/v1 path
func (h *Harness) URL(path string) string {
	return h.Server.URL + "/api/v1" + path
}

// CreateUser inserts a user with TestPassword
func (h *Harness) CreateUser(t *testing.T, name, email string, role models.Role, verified bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	passwordHash := string(hash)
	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: &passwordHash,
		Role:         role,
		IsVerified:   verified,
	}
	require.NoError(t, h.DB.Create(user).Error)
	return user
}

// TokenFor signs a bearer token for user
func (h *Harness) TokenFor(t *testing.T, user *models.User) string {
	t.Helper()

	tokens := services.NewTokenService(h.Config.JWTSecret, h.Config.JWTIssuer, h.Config.JWTAudience, h.Config.JWTTTL)
	issued, err := tokens.Issue(user)
	require.NoError(t, err)
	return issued.Token
}

// Response is a decoded API envelope
type Response struct {
	Status  int
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Error   map[string]interface{} `json:"error"`
}

// ErrorCode returns error.code, or "" on success
func (r *Response) ErrorCode() string {
	if r.Error == nil {
		return ""
	}
	code, _ := r.Error["code"].(string)
	return code
}

// DecodeData unmarshals the data field into out
func (r *Response) DecodeData(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, out), "data: %s", string(r.Data))
}

// Send issues a raw request to an /api/v1 path. The caller closes the body.
func (h *Harness) Send(t *testing.T, method, path, token, contentType string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, h.URL(path), body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.Server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// Do sends a JSON request to an /api/v1 path and decodes the envelope
func (h *Harness) Do(t *testing.T, method, path, token string, body interface{}) *Response {
	t.Helper()

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp := h.Send(t, method, path, token, contentType, reader)
	defer resp.Body.Close()
	return DecodeResponse(t, resp)
}

// DecodeResponse reads an envelope from resp
func DecodeResponse(t *testing.T, resp *http.Response) *Response {
	t.Helper()

	out := &Response{Status: resp.StatusCode}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return out
}
