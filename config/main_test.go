package config

import (
	"fmt"
	"os"
	"testing"
)

// connectionKeys are cleared so that no config test reaches a real database
// or broker and defaults are asserted against a clean environment
var connectionKeys = []string{
	"PORT",
	"DATABASE_URL",
	"REDIS_ADDR",
	"AMQP_URL",
	"SMTP_HOST",
	"TELEGRAM_TOKEN",
	"GOOGLE_CREDENTIALS_PATH",
	"SPREADSHEET_ID",
	"AWS_S3_BUCKET",
	"ALLOWED_ORIGINS",
}

func TestMain(m *testing.M) {
	if env := os.Getenv("GO_ENV"); env != "" && env != "test" {
		fmt.Fprintf(os.Stderr, "config tests must run with GO_ENV=test, current GO_ENV=%q\n", env)
		os.Exit(1)
	}
	for _, key := range connectionKeys {
		os.Unsetenv(key)
	}
	os.Setenv("GO_ENV", "test")

	os.Exit(m.Run())
}
