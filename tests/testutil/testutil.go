package testutil

import (
	"net/url"
	"os"
	"strings"
	"testing"
)

// RequireTestEnvironment fails the test unless GO_ENV is "test". Suites that
// may touch a real database call it before connecting.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: tests must run with GO_ENV=test, current GO_ENV=%q", env)
	}
}

// MustSetTestEnvironment sets GO_ENV=test for the duration of the test
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	t.Setenv("GO_ENV", "test")
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// PostgresURLOrSkip returns TEST_DATABASE_URL, skipping the test when it is
// unset. The database name must end in "_test" since suites truncate tables.
func PostgresURLOrSkip(t *testing.T) string {
	t.Helper()

	raw := os.Getenv("TEST_DATABASE_URL")
	if raw == "" {
		t.Skip("Skipping: TEST_DATABASE_URL is not set")
	}
	if !looksLikeTestDatabase(raw) {
		t.Fatalf("SAFETY CHECK FAILED: TEST_DATABASE_URL %s does not name a *_test database", MaskDatabaseURL(raw))
	}
	return raw
}

// MaskDatabaseURL hides the password of a connection URL for logging
func MaskDatabaseURL(raw string) string {
	if raw == "" {
		return "(not set)"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}

func looksLikeTestDatabase(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimPrefix(u.Path, "/"), "_test")
}
