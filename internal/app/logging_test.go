package app

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/nuetzliches/monitord/internal/config"
)

func TestPlainHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPlainHandler(&buf, nil))

	msg := `cannot load configuration file "/etc/monitord.conf" at line 3: environment variable "X" is not set`
	logger.Error(msg, slog.String("kind", "undefined_variable"))

	line := buf.String()
	re := regexp.MustCompile(`^\d+:\d{8}:\d{6}\.\d{3} (.*)\n$`)
	m := re.FindStringSubmatch(line)
	if m == nil {
		t.Fatalf("line=%q does not match pid:date:time format", line)
	}
	if want := msg + " kind=undefined_variable"; m[1] != want {
		t.Fatalf("body=%q, want %q", m[1], want)
	}
}

func TestPlainHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPlainHandler(&buf, nil)).With(slog.String("dialect", "server"))
	logger.WithGroup("pool").Info("pollers_started",
		slog.Int("count", 5),
		slog.String("note", "two words"),
		slog.String("empty", ""),
		slog.Group("by", slog.Int("kind", 1)),
	)

	got := buf.String()
	for _, want := range []string{
		" pollers_started dialect=server ",
		" pool.count=5",
		` pool.note="two words"`,
		` pool.empty=""`,
		" pool.by.kind=1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("line=%q missing %q", got, want)
		}
	}
}

func TestPlainHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPlainHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger.Info("hidden")
	logger.Warn("shown")
	if got := buf.String(); strings.Contains(got, "hidden") || !strings.Contains(got, "shown") {
		t.Fatalf("output=%q", got)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(slog.LevelInfo, "json", &buf)
	if err != nil {
		t.Fatalf("newLogger json: %v", err)
	}
	l.Info("config_ok")
	if !strings.Contains(buf.String(), `"msg":"config_ok"`) {
		t.Fatalf("json output=%q", buf.String())
	}

	if _, err := newLogger(slog.LevelInfo, "xml", &buf); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Fatalf("parseLogLevel(%q)=%v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseLogLevel("loud"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLevelFromDebugLevel(t *testing.T) {
	for n, want := range []slog.Level{slog.LevelInfo, slog.LevelInfo, slog.LevelInfo, slog.LevelInfo, slog.LevelDebug, slog.LevelDebug} {
		if got := levelFromDebugLevel(n); got != want {
			t.Fatalf("levelFromDebugLevel(%d)=%v, want %v", n, got, want)
		}
	}
}

func TestRuntimeLogger_FileSink(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "monitord.log")
	cfgPath := filepath.Join(dir, "server.conf")
	content := "LogType=file\nLogFile=" + logPath + "\nDebugLevel=4\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(t.Context(), cfgPath, config.DialectServer, config.Env{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var console bytes.Buffer
	logger, closer, err := runtimeLogger(cfg, "", "plain", &console)
	if err != nil {
		t.Fatalf("runtimeLogger: %v", err)
	}
	logger.Debug("poll_done")
	if closer == nil {
		t.Fatal("expected closer for file sink")
	}
	_ = closer.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), " poll_done\n") {
		t.Fatalf("log file=%q", data)
	}
	if console.Len() != 0 {
		t.Fatalf("console=%q, want empty", console.String())
	}
}

func TestRuntimeLogger_LevelFlagWins(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "server.conf")
	if err := os.WriteFile(cfgPath, []byte("DebugLevel=5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(t.Context(), cfgPath, config.DialectServer, config.Env{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var console bytes.Buffer
	logger, _, err := runtimeLogger(cfg, "warn", "plain", &console)
	if err != nil {
		t.Fatalf("runtimeLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hidden")
	if console.Len() != 0 {
		t.Fatalf("console=%q, want empty", console.String())
	}
}

func TestOpenLogSink_FileRequiresPath(t *testing.T) {
	_, _, err := openLogSink("file", " ", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := openLogSink("syslog", "", &bytes.Buffer{}); err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want invalid LogType error", err)
	}
}
