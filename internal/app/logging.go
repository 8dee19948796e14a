package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nuetzliches/monitord/internal/config"
)

// newLogger builds a logger writing to w. format is "plain" or "json".
func newLogger(level slog.Level, format string, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "plain":
		return slog.New(newPlainHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (use: plain|json)", format)
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid --log-level %q (use: debug|info|warn|error)", level)
	}
}

// levelFromDebugLevel maps the DebugLevel parameter (0-5) onto slog.
// Levels 4 and 5 are debugging output; everything below keeps info.
func levelFromDebugLevel(n int) slog.Level {
	if n >= 4 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// openLogSink opens the destination named by LogType and LogFile. console
// is the writer LogType=console resolves to.
func openLogSink(logType, path string, console io.Writer) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(logType)) {
	case "", "console":
		return console, nil, nil
	case "file":
		p := strings.TrimSpace(path)
		if p == "" {
			return nil, nil, errors.New("LogType=file requires LogFile")
		}
		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", p, err)
		}
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("invalid LogType %q (use: file|console)", logType)
	}
}

// runtimeLogger returns the logger a loaded configuration asks for. An
// explicit --log-level wins over DebugLevel.
func runtimeLogger(cfg *config.Config, levelFlag, format string, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := levelFromDebugLevel(cfg.Int("DebugLevel"))
	if strings.TrimSpace(levelFlag) != "" {
		l, err := parseLogLevel(levelFlag)
		if err != nil {
			return nil, nil, err
		}
		level = l
	}
	w, closer, err := openLogSink(cfg.String("LogType"), cfg.String("LogFile"), console)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(level, format, w)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return logger, closer, nil
}

// plainHandler writes one line per record:
//
//	pid:YYYYMMDD:HHMMSS.mmm message key=value ...
//
// The message is written as is, so error texts appear verbatim.
type plainHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	pid   int

	group string
	pre   string
}

func newPlainHandler(w io.Writer, opts *slog.HandlerOptions) *plainHandler {
	h := &plainHandler{mu: &sync.Mutex{}, w: w, level: slog.LevelInfo, pid: os.Getpid()}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *plainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *plainHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(h.pid))
	b.WriteByte(':')
	b.WriteString(t.Format("20060102:150405.000"))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		appendPlainAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *plainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.pre)
	for _, a := range attrs {
		appendPlainAttr(&b, h.group, a)
	}
	nh := *h
	nh.pre = b.String()
	return &nh
}

func (h *plainHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.group = h.group + name + "."
	return &nh
}

func appendPlainAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendPlainAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " =\"\t\n") {
		v = strconv.Quote(v)
	}
	b.WriteString(v)
}

func withAccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Debug("status_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", sw.bytesWritten),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytesWritten += n
	return n, err
}

func serveOnListener(logger *slog.Logger, name string, srv *http.Server, ln net.Listener, cancel func()) {
	go func() {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		logger.Error("http_server_error", slog.String("name", name), slog.Any("err", err))
		if cancel != nil {
			cancel()
		}
	}()
}
