package cache

import (
	"context"
	"log/slog"
	"maps"
	"reflect"
	"time"

	"github.com/inful/mdfp"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Gateway wraps a Store with the orchestrator's failure policy: loads fail
// silently to absent, saves are best-effort, and neither ever aborts a cycle.
type Gateway struct {
	store    Store
	recorder metrics.Recorder
}

// NewGateway creates a gateway over a store. A nil recorder disables metrics.
func NewGateway(store Store, recorder metrics.Recorder) *Gateway {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Gateway{store: store, recorder: recorder}
}

// Load fetches the cached wiki for an identity and language. Any transport or
// deserialization failure is logged and reported as a miss; Load never fails.
func (g *Gateway) Load(ctx context.Context, identity wiki.Identity, language string) *Record {
	key := KeyFor(identity, language)
	record, err := g.store.Get(ctx, key)
	if err != nil {
		if !IsNotFound(err) {
			slog.Warn("Cache read failed, treating as miss", "key", key.String(), "error",
				werrors.CacheUnavailable(err, "cache read failed"))
		}
		g.recorder.IncCacheResult(false)
		return nil
	}
	g.recorder.IncCacheResult(true)
	slog.Debug("Cache hit", "key", key.String(), "pages", len(record.Pages))
	return record
}

// Save persists a completed wiki. Failures are logged and returned wrapped as
// PersistUnavailable so the caller can surface them without aborting; content
// is already visible to the user in memory. When the stored record carries
// the same structure and page fingerprints, the write is skipped: a refresh
// that regenerated identical content leaves the record untouched.
func (g *Gateway) Save(ctx context.Context, identity wiki.Identity, language string, structure *wiki.Structure, pages map[string]wiki.PageContent) error {
	key := KeyFor(identity, language)
	record := &Record{
		Structure:    structure,
		Pages:        pages,
		Fingerprints: fingerprintPages(pages),
		SavedAt:      time.Now().UTC(),
	}
	if existing, err := g.store.Get(ctx, key); err == nil && unchanged(existing, record) {
		slog.Debug("Cache record unchanged, skipping write", "key", key.String())
		return nil
	}
	if err := g.store.Put(ctx, key, record); err != nil {
		werr := werrors.PersistUnavailable(err, "cache write failed")
		slog.Warn("Cache write failed", "key", key.String(), "error", werr)
		return werr
	}
	slog.Info("Wiki persisted to cache", "key", key.String(), "pages", len(pages))
	return nil
}

// Delete removes the cached wiki for an identity and language. Used by
// project-management flows; not part of the load cycle.
func (g *Gateway) Delete(ctx context.Context, identity wiki.Identity, language string) error {
	key := KeyFor(identity, language)
	if err := g.store.Delete(ctx, key); err != nil {
		return werrors.Wrap(err, werrors.CategoryCache, werrors.SeverityError, "cache delete failed").
			WithContext("key", key.String())
	}
	return nil
}

// unchanged reports whether a stored record already carries the same wiki:
// identical structure and identical fingerprints for the same set of pages.
func unchanged(existing, next *Record) bool {
	if existing.Structure == nil || next.Structure == nil {
		return false
	}
	return len(existing.Pages) == len(next.Pages) &&
		maps.Equal(existing.Fingerprints, next.Fingerprints) &&
		reflect.DeepEqual(existing.Structure, next.Structure)
}

// fingerprintPages computes a content fingerprint per completed page so later
// cycles can tell which pages actually changed.
func fingerprintPages(pages map[string]wiki.PageContent) map[string]string {
	fps := make(map[string]string, len(pages))
	for id, page := range pages {
		if page.State != wiki.PageStateComplete {
			continue
		}
		fps[id] = mdfp.CalculateFingerprintFromParts("", page.Content)
	}
	return fps
}
