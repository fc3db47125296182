package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Outside production the
// output is human-readable; in production it is JSON.
func InitLogger(level, env string) {
	InitLoggerWithWriter(level, env, os.Stdout)
}

// InitLoggerWithWriter is InitLogger with an explicit destination
func InitLoggerWithWriter(level, env string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = w
	if env != "production" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: env == "test"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
