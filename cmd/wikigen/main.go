package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/wikigen/internal/cache"
	"git.home.luguber.info/inful/wikigen/internal/config"
	"git.home.luguber.info/inful/wikigen/internal/daemon"
	"git.home.luguber.info/inful/wikigen/internal/export"
	"git.home.luguber.info/inful/wikigen/internal/repo"
	"git.home.luguber.info/inful/wikigen/internal/server"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"wikigen.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Generate struct {
		Refresh bool `help:"Bypass the cache and regenerate everything"`
	} `cmd:"" help:"Generate wikis for all configured repositories once"`

	Export struct {
		Repo     string `short:"r" required:"" help:"Repository URL or local path"`
		Language string `short:"l" help:"Wiki language" default:"en"`
		Format   string `short:"f" help:"Export format (json or markdown)" default:"json"`
		Output   string `short:"o" help:"Output file; stdout when omitted"`
	} `cmd:"" help:"Export a cached wiki to a file"`

	Cache struct {
		Delete struct {
			Repo     string `short:"r" required:"" help:"Repository URL or local path"`
			Language string `short:"l" help:"Wiki language" default:"en"`
		} `cmd:"" help:"Delete the cached wiki for a repository"`
	} `cmd:"" help:"Manage the wiki cache"`

	Serve struct {
		Addr string `short:"a" help:"Listen address override"`
	} `cmd:"" help:"Run continuously with the HTTP surface enabled"`
}

func main() {
	ctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Logging.SetupLogging(CLI.Verbose)

	switch ctx.Command() {
	case "generate":
		if err := runGenerate(cfg, CLI.Generate.Refresh); err != nil {
			slog.Error("Generate failed", "error", err)
			os.Exit(1)
		}
	case "export":
		if err := runExport(cfg, CLI.Export.Repo, CLI.Export.Language, CLI.Export.Format, CLI.Export.Output); err != nil {
			slog.Error("Export failed", "error", err)
			os.Exit(1)
		}
	case "cache delete":
		if err := runCacheDelete(cfg, CLI.Cache.Delete.Repo, CLI.Cache.Delete.Language); err != nil {
			slog.Error("Cache delete failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		if err := runServe(cfg, CLI.Serve.Addr); err != nil {
			slog.Error("Serve failed", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
}

// runGenerate performs one cycle per configured repository and prints a
// per-wiki summary.
func runGenerate(cfg *config.Config, refresh bool) error {
	d, err := daemon.New(cfg, "")
	if err != nil {
		return err
	}
	defer d.Stop()

	ctx := context.Background()
	entries := d.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key() < entries[j].Key() })

	var failures int
	for _, e := range entries {
		start := time.Now()
		var cycleErr error
		if refresh {
			cycleErr = e.Orch.Refresh(ctx)
		} else {
			cycleErr = e.Orch.Load(ctx)
		}
		if cycleErr != nil {
			failures++
			fmt.Printf("%-40s FAILED  %v\n", e.Key(), cycleErr)
			continue
		}
		snap := e.Orch.Snapshot()
		var complete, failed int
		for _, pc := range snap.Pages {
			switch pc.State {
			case wiki.PageStateComplete:
				complete++
			case wiki.PageStateFailed:
				failed++
			}
		}
		fmt.Printf("%-40s ready   %d pages (%d generated, %d failed) in %s\n",
			e.Key(), len(snap.Pages), complete, failed, time.Since(start).Round(time.Millisecond))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d wikis failed", failures, len(entries))
	}
	return nil
}

// runExport serializes a cached wiki without touching the generation backend.
func runExport(cfg *config.Config, repoRef, language, format, output string) error {
	identity, err := repo.ParseURL(repoRef)
	if err != nil {
		return err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gateway := cache.NewGateway(store, nil)
	record := gateway.Load(context.Background(), identity, language)
	if record == nil {
		return fmt.Errorf("no cached wiki for %s (%s); run generate first", identity.Slug(), language)
	}

	artifact, err := export.Export(identity, language, record.Structure, record.Pages, f)
	if err != nil {
		return err
	}

	if output == "" {
		_, err = os.Stdout.Write(artifact.Data)
		return err
	}
	if err := os.WriteFile(output, artifact.Data, 0o644); err != nil {
		return err
	}
	slog.Info("Wiki exported", "file", output, "bytes", len(artifact.Data))
	return nil
}

func runCacheDelete(cfg *config.Config, repoRef, language string) error {
	identity, err := repo.ParseURL(repoRef)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gateway := cache.NewGateway(store, nil)
	if err := gateway.Delete(context.Background(), identity, language); err != nil {
		return err
	}
	slog.Info("Cached wiki deleted", "repo", identity.Slug(), "language", language)
	return nil
}

func openStore(cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Backend == "nats" {
		return cache.NewNATSStore(cfg.Cache.URL, cfg.Cache.Bucket)
	}
	return cache.NewSQLiteStore(cfg.Cache.Path)
}

// runServe starts the daemon and the HTTP surface, then blocks until a
// termination signal.
func runServe(cfg *config.Config, addrOverride string) error {
	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		return err
	}
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	srv := server.New(d, addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
