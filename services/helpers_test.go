package services

import (
	"testing"
	"time"

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

// setupTestDB creates an in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same in-memory database.
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

func createUser(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
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
	require.NoError(t, db.Create(user).Error)
	return user
}

func createRequest(t *testing.T, db *gorm.DB, clientID uint, technicianID *uint, status models.Status) *models.RepairRequest {
	t.Helper()

	req := &models.RepairRequest{
		ClientID:         clientID,
		TechnicianID:     technicianID,
		Device:           "Samsung Galaxy S22",
		IssueDescription: "battery drains fast",
		Status:           status,
		Version:          1,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, db.Create(req).Error)
	return req
}

func createComment(t *testing.T, db *gorm.DB, requestID uint, authorID *uint, text string) *models.Comment {
	t.Helper()

	comment := &models.Comment{
		RepairRequestID: requestID,
		AuthorID:        authorID,
		Text:            text,
		Date:            time.Now().UTC(),
	}
	require.NoError(t, db.Create(comment).Error)
	return comment
}

func callerFor(u *models.User) Caller {
	return Caller{UserID: u.ID, Role: u.Role, Name: u.Name}
}

func uintPtr(v uint) *uint { return &v }

func strPtr(v string) *string { return &v }

func statusPtr(s models.Status) *models.Status { return &s }

func newTestLedger(db *gorm.DB, policy StatusPolicy) *RequestLedger {
	return NewRequestLedger(db, LedgerOptions{Policy: policy, Timeout: 2 * time.Second})
}
