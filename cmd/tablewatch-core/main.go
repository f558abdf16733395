package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/tablewatch/internal/broadcast"
	"github.com/tiroq/tablewatch/internal/cache"
	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/config"
	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/internal/diaglog"
	"github.com/tiroq/tablewatch/internal/dispatch"
	"github.com/tiroq/tablewatch/internal/events"
	"github.com/tiroq/tablewatch/internal/fallback"
	"github.com/tiroq/tablewatch/internal/ipc"
	"github.com/tiroq/tablewatch/internal/metrics"
	"github.com/tiroq/tablewatch/internal/pipeline"
)

const logPrefix = "[tablewatch-core]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	// --export-diag subcommand: read log, write bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		logPath := os.Getenv("TABLEWATCH_LOG_PATH")
		if logPath == "" {
			logPath = "/tmp/tablewatch-debug.log"
		}
		diaglog.Version = Version
		path, n, err := diaglog.Export(logPath, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with TABLEWATCH_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in tablewatch-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting Tablewatch Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	// Duplicate instance guard.
	pf, err := ipc.AcquirePid("tablewatch-core")
	if err != nil {
		errLog.Printf("Failed to claim PID file: %v", err)
		errLog.Println("Another instance of tablewatch-core may already be running.")
		os.Exit(1)
	}
	defer func() {
		if err := pf.Release(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("PID file created: %s", pf.Path())

	// Load configuration, seeding the file with defaults on first run.
	cfgPath := config.DefaultPath()
	outLog.Printf("[STARTUP] Loading configuration from %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		errLog.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
		if err := config.Save(cfgPath, cfg); err != nil {
			errLog.Printf("Warning: could not seed config file: %v", err)
		} else {
			outLog.Printf("[STARTUP] Seeded default configuration at %s", cfgPath)
		}
	}
	outLog.Printf("[STARTUP] Config: backend=%s interval=%dms categories=%d",
		cfg.CaptureBackend, cfg.CycleIntervalMs, len(cfg.Categories))
	provider := config.NewProvider(cfg)

	// Diagnostic NDJSON log.
	logPath := os.Getenv("TABLEWATCH_LOG_PATH")
	if logPath == "" {
		logPath = "/tmp/tablewatch-debug.log"
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Capture backend.
	var capturer capture.Capturer
	var surfaces capture.SurfaceProvider
	switch cfg.CaptureBackend {
	case "browser":
		outLog.Printf("[STARTUP] Starting browser backend for %s", cfg.BrowserURL)
		bc := capture.NewBrowserCapturer(cfg.BrowserURL)
		if err := bc.Start(ctx); err != nil {
			errLog.Printf("Failed to start browser backend: %v", err)
			os.Exit(1)
		}
		defer bc.Close()
		capturer = bc
		surfaces = capture.StaticSurfaces{bc.Surface(cfg.BrowserURL)}
	default:
		outLog.Println("[STARTUP] Using screen capture backend")
		capturer = capture.NewScreenCapturer()
		surfaces = capture.NewScreenSurfaces()
	}

	// Detection stack.
	var reader detect.TextReader
	if cfg.OCREnabled {
		tess := detect.NewTesseractReader()
		defer func() { _ = tess.Close() }()
		reader = tess
		outLog.Println("[STARTUP] OCR strategies enabled (tesseract)")
	} else {
		outLog.Println("[STARTUP] OCR strategies disabled")
	}
	ensembles := detect.BuildEnsembles(reader)

	bus := events.NewBus()
	dispatcher := dispatch.New(bus, cfg.PotTolerance)
	tracker := metrics.NewTracker()
	fb := fallback.New(cfg.FailureThreshold, time.Duration(cfg.RecoveryWindowS)*time.Second)

	engine, err := pipeline.New(pipeline.Options{
		Provider:   provider,
		Capturer:   capturer,
		Surfaces:   surfaces,
		Ensembles:  ensembles,
		Bus:        bus,
		Dispatcher: dispatcher,
		Cache:      cache.New(),
		Fallback:   fb,
		Metrics:    tracker,
		DiagLog:    diagLogger,
	})
	if err != nil {
		errLog.Printf("Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	// Config hot-reload.
	err = provider.Watch(ctx, cfgPath, func(reloadErr error) {
		if reloadErr != nil {
			errLog.Printf("Config reload failed, keeping previous configuration: %v", reloadErr)
			bus.Publish(events.NewConfigReloadFailure(reloadErr))
			return
		}
		outLog.Println("Configuration reloaded")
		bus.Publish(events.New(events.TypeConfigReloaded, events.SeverityInfo,
			"configuration reloaded", nil, ""))
		diagLogger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCore,
			Event:     diaglog.EventConfigReloaded,
		})
	})
	if err != nil {
		errLog.Printf("Warning: config watcher unavailable: %v", err)
	}

	// Event broadcast.
	hub := broadcast.NewHub(bus, diagLogger)
	go hub.Run(ctx)
	if cfg.BroadcastAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/events", hub)
		srv := &http.Server{Addr: cfg.BroadcastAddr, Handler: mux}
		go func() {
			outLog.Printf("[STARTUP] Broadcast listening on ws://%s/events", cfg.BroadcastAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errLog.Printf("Broadcast server error: %v", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	// Detection loop.
	go engine.Run(ctx)

	// Periodic status snapshots for the status CLI.
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := engine.Status()
				status.Clients = hub.ClientCount()
				if err := ipc.WriteStatus(status); err != nil {
					errLog.Printf("Failed to write status: %v", err)
				}
			}
		}
	}()

	// Command file watcher.
	quit := make(chan struct{}, 1)
	ctl := &controller{
		engine:   engine,
		provider: provider,
		cfgPath:  cfgPath,
		bus:      bus,
		dlog:     diagLogger,
		quit:     quit,
	}
	go ctl.watchCommands()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	outLog.Println("[RUNNING] Tablewatch Core is running")
	select {
	case <-sigChan:
		outLog.Println("[SHUTDOWN] Received shutdown signal")
	case <-quit:
		outLog.Println("[SHUTDOWN] Quit command received")
	}
	cancel()
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
}

// controller reacts to commands from the status CLI.
type controller struct {
	engine   *pipeline.Engine
	provider *config.Provider
	cfgPath  string
	bus      *events.Bus
	dlog     *diaglog.Logger
	quit     chan<- struct{}
}

// watchCommands monitors cmd.txt for control commands, preferring fsnotify
// with a polling safety net.
func (c *controller) watchCommands() {
	cmdPath := filepath.Join(os.Getenv("HOME"), ".cache", "tablewatch", "cmd.txt")
	cmdDir := filepath.Dir(cmdPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		c.watchCommandsWithPolling(cmdPath)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		c.watchCommandsWithPolling(cmdPath)
		return
	}
	outLog.Println("Command watcher started (using fsnotify)")

	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()
	lastCheckTime := time.Now()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				c.watchCommandsWithPolling(cmdPath)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(50 * time.Millisecond)
				if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
					c.handle(cmd)
					lastCheckTime = time.Now()
				}
			}

		case <-pollTicker.C:
			if fileInfo, err := os.Stat(cmdPath); err == nil && fileInfo.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
					c.handle(cmd)
				}
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				c.watchCommandsWithPolling(cmdPath)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling fallback for command monitoring.
func (c *controller) watchCommandsWithPolling(cmdPath string) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	lastCheckTime := time.Now()

	for range ticker.C {
		fileInfo, err := os.Stat(cmdPath)
		if err != nil {
			continue
		}
		if fileInfo.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond)
			if cmd, err := ipc.ReadCommand(); err == nil && cmd != "" {
				c.handle(cmd)
			}
			lastCheckTime = time.Now()
		}
	}
}

// handle processes one control command.
func (c *controller) handle(cmd ipc.Command) {
	outLog.Printf("Received command: %s", cmd)
	c.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventCommandReceived,
		Payload:   map[string]interface{}{"command": string(cmd)},
	})

	switch cmd {
	case ipc.CmdPause:
		c.engine.Pause()
		outLog.Println("Detection PAUSED")
	case ipc.CmdResume:
		c.engine.Resume()
		outLog.Println("Detection RESUMED")
	case ipc.CmdReload:
		if err := c.provider.Reload(c.cfgPath); err != nil {
			errLog.Printf("Reload failed, keeping previous configuration: %v", err)
			c.bus.Publish(events.NewConfigReloadFailure(err))
			return
		}
		outLog.Println("Configuration reloaded on command")
		c.bus.Publish(events.New(events.TypeConfigReloaded, events.SeverityInfo,
			"configuration reloaded", nil, ""))
	case ipc.CmdQuit:
		select {
		case c.quit <- struct{}{}:
		default:
		}
	}
}

// initLogging sets up log files with rotation support.
func initLogging() error {
	logDir := "/tmp"

	outLogPath := filepath.Join(logDir, "tablewatch-core.out.log")
	errLogPath := filepath.Join(logDir, "tablewatch-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
