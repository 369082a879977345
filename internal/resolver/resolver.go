// Package resolver decides where a cycle's wiki structure comes from: the
// cache when a usable record exists, the generation backend otherwise.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/wikigen/internal/cache"
	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/generator"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/repo"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Resolution is the outcome of a structure lookup. When FromCache is true,
// Pages carries the cached content map and no generation is needed; otherwise
// the structure is fresh and Pages is nil.
type Resolution struct {
	Structure *wiki.Structure
	Pages     map[string]wiki.PageContent
	FromCache bool
}

// Resolver fetches wiki structures, cache first.
type Resolver struct {
	cache    *cache.Gateway
	gen      generator.StructureGenerator
	recorder metrics.Recorder
}

// New creates a resolver. The recorder may be nil.
func New(gateway *cache.Gateway, gen generator.StructureGenerator, recorder metrics.Recorder) *Resolver {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Resolver{cache: gateway, gen: gen, recorder: recorder}
}

// FromCache returns the cached resolution for the identity and language, or
// nil when no usable record exists. Cache failures are absorbed by the
// gateway and degrade to a miss.
func (r *Resolver) FromCache(ctx context.Context, identity wiki.Identity, language string) *Resolution {
	record := r.cache.Load(ctx, identity, language)
	if record == nil || record.Structure == nil {
		return nil
	}
	slog.Info("Serving wiki from cache",
		"repo", identity.Slug(), "language", language, "pages", len(record.Pages))
	return &Resolution{
		Structure: record.Structure,
		Pages:     record.Pages,
		FromCache: true,
	}
}

// Generate asks the backend for a fresh structure. A backend failure is fatal
// for the cycle.
func (r *Resolver) Generate(ctx context.Context, identity wiki.Identity, language string, params generator.Params) (*Resolution, error) {
	params = withLocalContext(identity, params)
	start := time.Now()
	structure, err := r.gen.GenerateStructure(ctx, identity, params)
	if err != nil {
		r.recorder.ObserveStructureDuration(time.Since(start), false)
		return nil, werrors.StructureUnavailable(err, "structure generation failed")
	}
	r.recorder.ObserveStructureDuration(time.Since(start), true)

	for _, warning := range structure.Validate() {
		slog.Warn("Structure has dangling reference", "repo", identity.Slug(), "detail", warning)
	}
	slog.Info("Structure generated",
		"repo", identity.Slug(), "language", language,
		"pages", len(structure.Pages), "sections", len(structure.Sections),
		"duration", time.Since(start))

	return &Resolution{Structure: structure}, nil
}

// withLocalContext fills the file tree and HEAD revision for repositories on
// disk. The backend cannot walk a local worktree itself, so the request has
// to carry them. Failures degrade to a request without the extra context.
func withLocalContext(identity wiki.Identity, params generator.Params) generator.Params {
	if identity.HostType != "local" || identity.LocalPath == "" {
		return params
	}
	local, err := repo.OpenLocal(identity.LocalPath)
	if err != nil {
		slog.Warn("Local repository unreadable, generating without file tree",
			"repo", identity.Slug(), "error", err)
		return params
	}
	if files, err := local.Files(params.ExcludedDirs, params.ExcludedFiles); err != nil {
		slog.Warn("Listing tracked files failed", "repo", identity.Slug(), "error", err)
	} else {
		params.FileTree = files
	}
	if rev, err := local.HeadRef(); err != nil {
		slog.Warn("Resolving HEAD failed", "repo", identity.Slug(), "error", err)
	} else {
		params.Revision = rev
	}
	return params
}

// Resolve is the cache-first composition of FromCache and Generate. Unless
// bypassCache is set, a cached record short-circuits generation.
func (r *Resolver) Resolve(ctx context.Context, identity wiki.Identity, language string, params generator.Params, bypassCache bool) (*Resolution, error) {
	if !bypassCache {
		if res := r.FromCache(ctx, identity, language); res != nil {
			return res, nil
		}
	}
	return r.Generate(ctx, identity, language, params)
}
