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
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"

	"github.com/nuetzliches/monitord/internal/admin"
	"github.com/nuetzliches/monitord/internal/config"
	"github.com/nuetzliches/monitord/internal/daemon"
)

type runOptions struct {
	load      *loadFlags
	dbPath    string
	pidFile   string
	logLevel  string
	logFormat string
	watch     bool
	tracing   tracingOptions
}

func runCmd(args []string) int {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := runOptions{load: addLoadFlags(fs)}
	fs.StringVar(&opts.dbPath, "db", "./monitord.db", "path to sqlite history db (HistoryBackend=sqlite)")
	fs.StringVar(&opts.pidFile, "pid-file", "", "write process PID to file (overrides PidFile)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error); default derived from DebugLevel")
	fs.StringVar(&opts.logFormat, "log-format", "plain", "log format (plain|json)")
	fs.BoolVar(&opts.watch, "watch", false, "reload when a loaded config file changes")
	fs.StringVar(&opts.tracing.Endpoint, "trace-endpoint", "", "OTLP/HTTP collector URL; tracing is off when empty")
	fs.BoolVar(&opts.tracing.Insecure, "trace-insecure", false, "use plain HTTP for the collector")
	fs.StringVar(&opts.tracing.CAFile, "trace-ca-file", "", "CA bundle for the collector")
	fs.StringVar(&opts.tracing.ServerName, "trace-server-name", "", "TLS server name for the collector")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runDaemon(ctx, opts, os.Stderr)
}

// runDaemon loads the configuration, starts the daemon and blocks until ctx
// is done. Any load failure is logged verbatim and ends the process before
// a single worker starts.
func runDaemon(ctx context.Context, opts runOptions, stderr io.Writer) int {
	bootLevel := slog.LevelInfo
	if strings.TrimSpace(opts.logLevel) != "" {
		l, err := parseLogLevel(opts.logLevel)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 2
		}
		bootLevel = l
	}
	logger, err := newLogger(bootLevel, opts.logFormat, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	dialect, err := opts.load.parseDialect()
	if err != nil {
		logger.Error(err.Error())
		return 2
	}
	env, err := opts.load.environment()
	if err != nil {
		logger.Error("dotenv_failed", slog.Any("err", err))
		return 1
	}
	configPath := opts.load.path(dialect)
	loader := &config.Loader{Dialect: dialect, Env: env}
	cfg, err := loader.Load(ctx, configPath)
	if err != nil {
		logger.Error(err.Error(), slog.String("kind", string(config.KindOf(err))))
		return 1
	}

	rlogger, logCloser, err := runtimeLogger(cfg, opts.logLevel, opts.logFormat, stderr)
	if err != nil {
		logger.Error("runtime_log_failed", slog.Any("err", err))
		return 1
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}
	logger = rlogger
	for _, w := range cfg.Warnings {
		logger.Warn("config_warning", slog.String("warning", w))
	}

	pidFile := strings.TrimSpace(opts.pidFile)
	if pidFile == "" {
		pidFile = cfg.String("PidFile")
	}
	releasePIDFile, err := claimPIDFile(pidFile)
	if err != nil {
		logger.Error("pid_file_failed", slog.Any("err", err))
		return 1
	}
	defer releasePIDFile()

	if opts.tracing.enabled() {
		opts.tracing.ServiceSuffix = dialect.String()
		shutdownTracing, err := initTracing(ctx, opts.tracing, func(err error) {
			logger.Error("tracing_export_failed", slog.Any("err", err))
		})
		if err != nil {
			logger.Error("tracing_init_failed", slog.Any("err", err))
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(sctx)
		}()
		logger.Info("tracing_enabled", slog.String("endpoint", opts.tracing.Endpoint))
	}

	rt, err := daemon.New(cfg, daemon.Options{Logger: logger, SQLitePath: opts.dbPath})
	if err != nil {
		logger.Error("daemon_init_failed", slog.Any("err", err))
		return 1
	}
	defer func() { _ = rt.Close() }()

	logger.Info("config_ok",
		slog.String("dialect", dialect.String()),
		slog.String("path", configPath),
		slog.Int("files", len(cfg.Files)),
		slog.String("host", rt.Host()),
		slog.String("instance", rt.Instance()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reloadMu sync.Mutex
	reloadNow := func(trigger string) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		reloadConfig(ctx, opts.load, configPath, rt, logger, trigger)
	}

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				reloadNow("signal_sighup")
			}
		}
	}()

	stopServers, err := startStatusServers(ctx, cfg, rt, logger, opts.tracing.enabled(), cancel)
	if err != nil {
		logger.Error("start_servers_failed", slog.Any("err", err))
		return 1
	}
	defer stopServers()

	if opts.watch {
		go watchConfig(ctx, func() []string { return rt.Config().Files }, logger, func() {
			reloadNow("watch")
		})
	}

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon_failed", slog.Any("err", err))
		return 1
	}
	logger.Info("shutdown")
	return 0
}

// reloadConfig loads the configuration again and hands it to the runtime.
// A failed load keeps the running configuration.
func reloadConfig(ctx context.Context, lf *loadFlags, path string, rt *daemon.Runtime, logger *slog.Logger, trigger string) bool {
	env, err := lf.environment()
	if err != nil {
		logger.Error("config_reload_failed", slog.Any("err", err), slog.String("trigger", trigger))
		return false
	}
	loader := &config.Loader{Dialect: rt.Config().Dialect, Env: env}
	cfg, err := loader.Load(ctx, path)
	if err != nil {
		logger.Error(err.Error(), slog.String("kind", string(config.KindOf(err))), slog.String("trigger", trigger))
		return false
	}
	restart, err := rt.Reload(cfg)
	if err != nil {
		logger.Error("config_reload_failed", slog.Any("err", err), slog.String("trigger", trigger))
		return false
	}
	if len(restart) > 0 {
		logger.Warn("config_reloaded_restart_required",
			slog.String("trigger", trigger),
			slog.String("parameters", strings.Join(restart, ",")),
		)
		return true
	}
	logger.Info("config_reloaded_ok", slog.String("trigger", trigger))
	return true
}

// startStatusServers opens the listeners named by StatusListen and
// StatusGRPCListen. The returned function shuts both down.
func startStatusServers(ctx context.Context, cfg *config.Config, rt *daemon.Runtime, logger *slog.Logger, tracing bool, cancel func()) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if addr := cfg.String("StatusListen"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("status listen %q: %w", addr, err)
		}
		var h http.Handler = &admin.Server{
			Healthy: rt.Healthy,
			Status:  func() any { return rt.Status() },
			History: rt.History,
		}
		h = wrapTracingHandler(tracing, "status", withAccessLog(logger, h))
		srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
		serveOnListener(logger, "status", srv, ln, cancel)
		logger.Info("status_listening", slog.String("addr", ln.Addr().String()))
		stops = append(stops, func() {
			sctx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = srv.Shutdown(sctx)
		})
	}

	if addr := cfg.String("StatusGRPCListen"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("status grpc listen %q: %w", addr, err)
		}
		gh := admin.NewGRPCHealth()
		go func() {
			if err := gh.Serve(ln); err != nil {
				logger.Error("grpc_server_error", slog.Any("err", err))
				cancel()
			}
		}()
		go gh.Track(ctx, time.Second, rt.Healthy)
		logger.Info("status_grpc_listening", slog.String("addr", ln.Addr().String()))
		stops = append(stops, gh.Stop)
	}

	return stopAll, nil
}

const watchDebounce = 200 * time.Millisecond

// watchConfig calls reload when any file reported by files changes. The
// set is re-read after every reload so newly included files are tracked.
func watchConfig(ctx context.Context, files func() []string, logger *slog.Logger, reload func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("watch_disabled", slog.Any("err", err))
		return
	}
	defer w.Close()

	watchedDirs := map[string]bool{}
	var tracked map[string]bool
	track := func() {
		tracked = map[string]bool{}
		for _, f := range files() {
			p := absPath(f)
			tracked[p] = true
			dir := filepath.Dir(p)
			if watchedDirs[dir] {
				continue
			}
			if err := w.Add(dir); err != nil {
				logger.Warn("watch_add_failed", slog.String("dir", dir), slog.Any("err", err))
				continue
			}
			watchedDirs[dir] = true
		}
	}
	track()
	if len(watchedDirs) == 0 {
		logger.Warn("watch_disabled", slog.String("reason", "no watchable directories"))
		return
	}
	logger.Info("watching_config", slog.Int("files", len(tracked)))

	// Coalesce bursts of editor and atomic-rename events.
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
		} else {
			timer.Reset(watchDebounce)
		}
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !tracked[absPath(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("watch_error", slog.Any("err", err))
		case <-timerCh:
			timerCh = nil
			reload()
			track()
		}
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
