package repositories

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by ConfigureLogging.
const (
	LogLevelEnv  = "AZREPO_LOG_LEVEL"
	LogFormatEnv = "AZREPO_LOG_FORMAT"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs the default logger, writing to stdout. See ConfigureLoggingTo.
func ConfigureLogging() {
	ConfigureLoggingTo(os.Stdout)
}

// ConfigureLoggingTo installs and returns a default logger writing to w. AZREPO_LOG_LEVEL takes slog level
// names (DEBUG, WARN, error, INFO+2, ...) and defaults to Info. AZREPO_LOG_FORMAT=json switches the text
// output to JSON. Every record carries the library version.
func ConfigureLoggingTo(w io.Writer) *slog.Logger {
	logLevel.Set(parseLogLevel(os.Getenv(LogLevelEnv)))

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv(LogFormatEnv), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler).With("version", Version)
	slog.SetDefault(l)
	return l
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

func parseLogLevel(s string) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return l
}
