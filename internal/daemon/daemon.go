// Package daemon runs wiki generation continuously for every configured
// repository: initial loads on startup, scheduled refreshes, configuration
// reloads on file change, and optional NATS publication of cycle events.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/wikigen/internal/cache"
	"git.home.luguber.info/inful/wikigen/internal/config"
	"git.home.luguber.info/inful/wikigen/internal/events"
	"git.home.luguber.info/inful/wikigen/internal/generator"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/orchestrator"
	"git.home.luguber.info/inful/wikigen/internal/repo"
	"git.home.luguber.info/inful/wikigen/internal/resolver"
	"git.home.luguber.info/inful/wikigen/internal/retry"
	"git.home.luguber.info/inful/wikigen/internal/scheduler"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Entry is one managed wiki: a repository identity, its language, and the
// orchestrator driving its cycles. Each entry has its own event bus so page
// results never cross between repositories.
type Entry struct {
	Identity wiki.Identity
	Language string
	Orch     *orchestrator.Orchestrator

	bus       *events.Bus
	unpublish func()
}

// Key returns the entry's lookup key.
func (e *Entry) Key() string {
	return e.Identity.Slug() + "@" + e.Language
}

// Daemon owns the shared infrastructure (cache store, generation client,
// metrics) and the per-repository entries.
type Daemon struct {
	configPath string

	store    cache.Store
	gateway  *cache.Gateway
	client   *generator.Client
	recorder metrics.Recorder
	registry *prometheus.Registry

	cron      gocron.Scheduler
	watcher   *ConfigWatcher
	publisher *Publisher

	mu      sync.RWMutex
	cfg     *config.Config
	entries map[string]*Entry
}

// New builds a daemon from configuration. configPath may be empty, which
// disables the file watcher.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	store, err := newStore(cfg.Cache)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	gateway := cache.NewGateway(store, recorder)
	client := generator.NewClient(cfg.Generator.Endpoint, cfg.Generator.Timeout, retry.DefaultPolicy())

	d := &Daemon{
		configPath: configPath,
		store:      store,
		gateway:    gateway,
		client:     client,
		recorder:   recorder,
		registry:   registry,
		cfg:        cfg,
		entries:    make(map[string]*Entry),
	}

	if cfg.Events.Enabled {
		publisher, err := NewPublisher(cfg.Events.URL, cfg.Events.Subject)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		d.publisher = publisher
	}

	if err := d.applyRepositories(cfg); err != nil {
		d.closeInfra()
		return nil, err
	}
	return d, nil
}

// newStore builds the configured cache backend.
func newStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "nats":
		return cache.NewNATSStore(cfg.URL, cfg.Bucket)
	default:
		return cache.NewSQLiteStore(cfg.Path)
	}
}

// Start performs the initial load of every entry, then arms the scheduled
// refresh and the configuration watcher. It returns once startup is done;
// background work continues until Stop.
func (d *Daemon) Start(ctx context.Context) error {
	for _, e := range d.Entries() {
		entry := e
		if err := entry.Orch.Load(ctx); err != nil {
			// Startup continues; the entry stays in the error state and the
			// next scheduled refresh retries it.
			slog.Error("Initial load failed", "repo", entry.Identity.Slug(), "error", err)
		}
	}

	d.mu.RLock()
	interval := d.cfg.Refresh.Interval
	d.mu.RUnlock()

	if interval > 0 {
		cron, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create refresh scheduler: %w", err)
		}
		_, err = cron.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(d.refreshAll, ctx),
			gocron.WithName("wiki-refresh"),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule refresh job: %w", err)
		}
		cron.Start()
		d.cron = cron
		slog.Info("Scheduled refresh armed", "interval", interval)
	}

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		d.watcher = watcher
	}

	return nil
}

// Stop tears the daemon down: scheduler, watcher, entries, publisher, store.
func (d *Daemon) Stop() {
	if d.cron != nil {
		if err := d.cron.Shutdown(); err != nil {
			slog.Warn("Refresh scheduler shutdown failed", "error", err)
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}

	d.mu.Lock()
	for _, e := range d.entries {
		closeEntry(e)
	}
	d.entries = make(map[string]*Entry)
	d.mu.Unlock()

	d.closeInfra()
}

func (d *Daemon) closeInfra() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("Cache store close failed", "error", err)
	}
}

// Entries returns the managed entries. Order is not guaranteed; callers sort
// as needed.
func (d *Daemon) Entries() []*Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	return out
}

// Lookup finds the entry for an owner/repo/language triple.
func (d *Daemon) Lookup(owner, repoName, language string) *Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entries {
		if e.Identity.Owner == owner && e.Identity.Repo == repoName && e.Language == language {
			return e
		}
	}
	return nil
}

// Registry exposes the metrics registry for the HTTP surface.
func (d *Daemon) Registry() *prometheus.Registry { return d.registry }

// refreshAll regenerates every entry, bypassing the cache.
func (d *Daemon) refreshAll(ctx context.Context) {
	slog.Info("Scheduled refresh starting", "entries", len(d.Entries()))
	for _, e := range d.Entries() {
		if err := e.Orch.Refresh(ctx); err != nil {
			slog.Error("Scheduled refresh failed", "repo", e.Identity.Slug(), "error", err)
		}
	}
}

// Reload swaps in a freshly loaded configuration: entries for removed
// repositories are closed, entries for added ones are created and loaded.
// Shared infrastructure (store, client) is not rebuilt.
func (d *Daemon) Reload(ctx context.Context, cfg *config.Config) error {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	if err := d.applyRepositories(cfg); err != nil {
		return err
	}

	for _, e := range d.Entries() {
		if e.Orch.Snapshot().State == orchestrator.StateIdle {
			if err := e.Orch.Load(ctx); err != nil {
				slog.Error("Load after reload failed", "repo", e.Identity.Slug(), "error", err)
			}
		}
	}
	return nil
}

// applyRepositories reconciles the entry map against the configured
// repository list.
func (d *Daemon) applyRepositories(cfg *config.Config) error {
	wanted := make(map[string]config.Repository)
	for _, rc := range cfg.Repositories {
		identity, err := identityFor(rc)
		if err != nil {
			return err
		}
		wanted[identity.Slug()+"@"+rc.Language] = rc
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.entries {
		if _, keep := wanted[key]; !keep {
			slog.Info("Removing wiki entry", "key", key)
			closeEntry(e)
			delete(d.entries, key)
		}
	}

	for key, rc := range wanted {
		if _, exists := d.entries[key]; exists {
			continue
		}
		entry, err := d.newEntry(cfg, rc)
		if err != nil {
			return err
		}
		slog.Info("Adding wiki entry", "key", key)
		d.entries[key] = entry
	}
	return nil
}

func identityFor(rc config.Repository) (wiki.Identity, error) {
	identity, err := repo.ParseURL(rc.URL)
	if err != nil {
		return wiki.Identity{}, err
	}
	identity.Token = rc.Token
	if rc.LocalPath != "" {
		identity.LocalPath = rc.LocalPath
		identity.HostType = "local"
	}
	return identity, nil
}

// newEntry wires one orchestrator with its own bus and scheduler.
func (d *Daemon) newEntry(cfg *config.Config, rc config.Repository) (*Entry, error) {
	identity, err := identityFor(rc)
	if err != nil {
		return nil, err
	}
	if identity.HostType == "local" {
		if _, err := repo.OpenLocal(identity.LocalPath); err != nil {
			return nil, err
		}
	}

	bus := events.NewBus()

	var limit rate.Limit
	if cfg.Scheduler.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.Scheduler.RatePerMinute))
	}
	sched := scheduler.New(d.client, bus, scheduler.Options{
		Workers:   cfg.Scheduler.Workers,
		RateLimit: limit,
		Recorder:  d.recorder,
	})

	orch := orchestrator.New(orchestrator.Config{
		Identity: identity,
		Language: rc.Language,
		Params: generator.Params{
			Provider:      cfg.Generator.Provider,
			Model:         cfg.Generator.Model,
			Language:      rc.Language,
			ExcludedDirs:  cfg.Generator.ExcludedDirs,
			ExcludedFiles: cfg.Generator.ExcludedFiles,
		},
		Comprehensive: cfg.Generator.Comprehensive(),
		Cache:         d.gateway,
		Resolver:      resolver.New(d.gateway, d.client, d.recorder),
		Scheduler:     sched,
		Bus:           bus,
		Recorder:      d.recorder,
	})

	entry := &Entry{Identity: identity, Language: rc.Language, Orch: orch, bus: bus}
	if d.publisher != nil {
		entry.unpublish = d.publisher.Watch(identity.Slug(), rc.Language, bus)
	}
	return entry, nil
}

func closeEntry(e *Entry) {
	if e.unpublish != nil {
		e.unpublish()
	}
	e.Orch.Close()
	e.bus.Close()
}
