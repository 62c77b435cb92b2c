package repositories

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func Test_ParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO+2":  slog.LevelInfo + 2,
		"verbose": slog.LevelInfo,
	}
	for s, want := range cases {
		if got := parseLogLevel(s); got != want {
			t.Errorf("%q: got %v, want %v", s, got, want)
		}
	}
}

func Test_ConfigureLoggingTo(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		logLevel.Set(slog.LevelInfo)
	})

	t.Setenv(LogLevelEnv, "debug")
	t.Setenv(LogFormatEnv, "json")
	var buf bytes.Buffer
	ConfigureLoggingTo(&buf)

	slog.Debug("staged", "actions", 3)
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("got %q, %v", buf.String(), err)
	}
	if record["level"] != "DEBUG" || record["msg"] != "staged" || record["version"] != Version {
		t.Errorf("got %v", record)
	}

	buf.Reset()
	SetLogLevel(slog.LevelWarn)
	slog.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}

	t.Setenv(LogFormatEnv, "")
	ConfigureLoggingTo(&buf)
	slog.Info("text")
	if !strings.Contains(buf.String(), "msg=text") {
		t.Errorf("got %q, want text output", buf.String())
	}
}
