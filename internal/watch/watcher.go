package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cerberusindex/cerberus/internal/incremental"
	"github.com/cerberusindex/cerberus/internal/scan"
)

// StateDirName is the per-project state directory holding the PID file,
// socket, log, backups, and transaction history.
const StateDirName = ".cerberus"

// Config configures a watcher for one project root.
type Config struct {
	Root           string
	Extensions     []string
	DebounceWindow time.Duration
	HealthInterval time.Duration
	LogPath        string
	MaxLogBytes    int64
	MaxCPUPercent  float64
}

// StateDir returns the project's watcher state directory.
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// PIDPath returns the project's watcher PID file path.
func PIDPath(root string) string {
	return filepath.Join(StateDir(root), filepath.Base(root)+".pid")
}

// SocketPath returns the project's IPC socket path.
func SocketPath(root string) string {
	return filepath.Join(StateDir(root), filepath.Base(root)+".sock")
}

// Watcher is the long-lived daemon: one producer reading filesystem
// events, one consumer applying debounced batches through the incremental
// engine. The apply side is the only store writer.
type Watcher struct {
	cfg      Config
	engine   *incremental.Engine
	pidfile  *PIDFile
	debounce *Debouncer
	health   *healthMonitor
	logger   *slog.Logger

	extFilter map[string]bool

	// OnUpdate, when set, runs after each successful incremental apply;
	// the daemon uses it to invalidate in-memory caches.
	OnUpdate func(*incremental.UpdateResult)

	stopReason string
}

// NewWatcher builds a watcher; Run does the actual work.
func NewWatcher(cfg Config, engine *incremental.Engine, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}

	extFilter := make(map[string]bool)
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = scan.DefaultRegistry().SupportedExtensions()
	}
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extFilter[strings.ToLower(ext)] = true
	}

	return &Watcher{
		cfg:       cfg,
		engine:    engine,
		pidfile:   NewPIDFile(PIDPath(cfg.Root)),
		debounce:  NewDebouncer(cfg.DebounceWindow, logger),
		health:    newHealthMonitor(cfg.LogPath, cfg.MaxLogBytes, cfg.MaxCPUPercent),
		logger:    logger,
		extFilter: extFilter,
	}
}

// Health returns the current self-health snapshot.
func (w *Watcher) Health() HealthStatus { return w.health.status() }

// StopReason reports why Run returned, when the watcher stopped itself.
func (w *Watcher) StopReason() string { return w.stopReason }

// Run claims the PID singleton, reconciles offline changes, subscribes to
// recursive filesystem events, and loops until ctx is canceled or a
// self-health threshold trips. The stop signal is honored at the next
// event boundary.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.pidfile.Acquire(); err != nil {
		return err
	}
	defer func() { _ = w.pidfile.Release() }()
	defer w.debounce.Stop()

	// Cover edits made while no watcher was running.
	if result, err := w.engine.Reconcile(ctx); err != nil {
		w.logger.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	} else if result != nil {
		w.logger.Info("startup reconciliation applied",
			slog.Int("files_reparsed", result.FilesReparsed))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.subscribeRecursive(fsw); err != nil {
		return err
	}

	healthTicker := time.NewTicker(w.cfg.HealthInterval)
	defer healthTicker.Stop()

	w.logger.Info("watcher started", slog.String("root", w.cfg.Root))
	for {
		select {
		case <-ctx.Done():
			w.stopReason = "stop requested"
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				w.stopReason = "event stream closed"
				return nil
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				w.stopReason = "error stream closed"
				return nil
			}
			w.logger.Warn("fsnotify error", slog.String("error", err.Error()))

		case batch, ok := <-w.debounce.Output():
			if !ok {
				w.stopReason = "debouncer stopped"
				return nil
			}
			w.applyBatch(ctx, batch)

		case <-healthTicker.C:
			if reason := w.health.check(); reason != "" {
				w.stopReason = reason
				w.logger.Error("watcher stopped: " + reason)
				return fmt.Errorf("watcher stopped: %s", reason)
			}
		}
	}
}

// handleEvent filters one raw event and pushes it into the debouncer.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Index, journal, and state files never trigger reindexing.
	if strings.HasPrefix(rel, StateDirName+"/") || rel == StateDirName {
		return
	}
	base := filepath.Base(rel)
	if strings.HasSuffix(base, ".db") || strings.HasSuffix(base, ".db-wal") ||
		strings.HasSuffix(base, ".db-shm") || strings.HasSuffix(base, ".log") {
		return
	}

	// New directories join the recursive subscription.
	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			_ = fsw.Add(event.Name)
			return
		}
	}

	if !w.extFilter[strings.ToLower(filepath.Ext(rel))] {
		return
	}

	op := OpModify
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	}

	w.health.recordEvents(1)
	w.debounce.Add(FileEvent{Path: rel, Operation: op})
}

// applyBatch drives the incremental engine with one debounced batch.
// Updates are serialized here; this is the only writer.
func (w *Watcher) applyBatch(ctx context.Context, batch []FileEvent) {
	paths := make([]string, 0, len(batch))
	for _, event := range batch {
		paths = append(paths, event.Path)
	}

	cs, err := incremental.DetectFSChanges(ctx, w.engine.Store(), w.cfg.Root, paths)
	if err != nil {
		w.logger.Warn("change detection failed", slog.String("error", err.Error()))
		return
	}
	if cs.Empty() {
		return
	}

	result, err := w.engine.Apply(ctx, cs, incremental.StrategyIncremental)
	if err != nil {
		w.logger.Warn("incremental update failed", slog.String("error", err.Error()))
		return
	}

	w.health.recordUpdate()
	w.logger.Info("incremental update applied",
		slog.Int("files_reparsed", result.FilesReparsed),
		slog.Int("updated_symbols", len(result.UpdatedSymbols)),
		slog.Int("removed_symbols", len(result.RemovedSymbols)))

	if w.OnUpdate != nil {
		w.OnUpdate(result)
	}
}

func (w *Watcher) subscribeRecursive(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != w.cfg.Root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
