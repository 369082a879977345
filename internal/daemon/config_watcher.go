package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/wikigen/internal/config"
)

// ConfigWatcher reloads the daemon when the configuration file changes on
// disk. It watches the containing directory rather than the file itself so
// atomic rename-style saves are caught too.
type ConfigWatcher struct {
	configPath   string
	daemon       *Daemon
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher for the given configuration file.
func NewConfigWatcher(configPath string, daemon *Daemon) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &ConfigWatcher{
		configPath:   absPath,
		daemon:       daemon,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring. It returns after the watch is established; events
// are handled in the background until Stop.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	slog.Info("Watching configuration file", "path", cw.configPath)
	go cw.watchLoop(ctx)
	go cw.reloadLoop(ctx)
	return nil
}

// Stop ends monitoring.
func (cw *ConfigWatcher) Stop() {
	close(cw.stopChan)
	_ = cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.relevant(event) {
				continue
			}
			// Coalesce bursts; reloadChan has capacity 1.
			select {
			case cw.reloadChan <- struct{}{}:
			default:
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		case <-cw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != cw.configPath {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}

func (cw *ConfigWatcher) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-cw.reloadChan:
			// Editors emit several events per save; wait for the dust to settle.
			time.Sleep(cw.debounceTime)
			cw.reload(ctx)
		case <-cw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cw *ConfigWatcher) reload(ctx context.Context) {
	cfg, err := config.Load(cw.configPath)
	if err != nil {
		slog.Error("Configuration reload failed, keeping previous configuration", "error", err)
		return
	}
	if err := cw.daemon.Reload(ctx, cfg); err != nil {
		slog.Error("Applying reloaded configuration failed", "error", err)
		return
	}
	slog.Info("Configuration reloaded", "repositories", len(cfg.Repositories))
}
