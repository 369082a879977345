package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, Key) (*Record, error) { return nil, fmt.Errorf("down") }
func (failingStore) Put(context.Context, Key, *Record) error   { return fmt.Errorf("down") }
func (failingStore) Delete(context.Context, Key) error         { return fmt.Errorf("down") }
func (failingStore) Close() error                              { return nil }

func testIdentity() wiki.Identity {
	return wiki.Identity{Owner: "acme", Repo: "widget", HostType: "github"}
}

func TestGatewayLoad_AbsentOnStoreFailure(t *testing.T) {
	g := NewGateway(failingStore{}, nil)
	record := g.Load(context.Background(), testIdentity(), "en")
	require.Nil(t, record)
}

func TestGatewayLoad_AbsentOnMiss(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	g := NewGateway(store, nil)
	require.Nil(t, g.Load(context.Background(), testIdentity(), "en"))
}

func TestGatewaySaveLoad_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	g := NewGateway(store, nil)
	ctx := context.Background()

	structure := &wiki.Structure{
		ID:    "wiki-1",
		Title: "Widget Wiki",
		Pages: []wiki.PageDescriptor{{ID: "intro", Importance: wiki.ImportanceHigh}},
	}
	pages := map[string]wiki.PageContent{
		"intro": {PageID: "intro", Content: "# Intro", State: wiki.PageStateComplete},
		"setup": {PageID: "setup", Content: "", State: wiki.PageStateNotRequested},
	}

	require.NoError(t, g.Save(ctx, testIdentity(), "en", structure, pages))

	record := g.Load(ctx, testIdentity(), "en")
	require.NotNil(t, record)
	require.Equal(t, "Widget Wiki", record.Structure.Title)
	require.Equal(t, "# Intro", record.Pages["intro"].Content)

	// Only completed pages are fingerprinted.
	require.Contains(t, record.Fingerprints, "intro")
	require.NotContains(t, record.Fingerprints, "setup")
	require.NotEmpty(t, record.Fingerprints["intro"])
}

func TestGatewaySave_FailureIsNonFatal(t *testing.T) {
	g := NewGateway(failingStore{}, nil)
	err := g.Save(context.Background(), testIdentity(), "en",
		&wiki.Structure{ID: "wiki-1"}, map[string]wiki.PageContent{})
	require.Error(t, err) // reported, but callers treat it as best-effort
}

// countingStore counts the writes that reach the underlying store.
type countingStore struct {
	Store
	puts int
}

func (s *countingStore) Put(ctx context.Context, key Key, record *Record) error {
	s.puts++
	return s.Store.Put(ctx, key, record)
}

func TestGatewaySave_SkipsWriteWhenContentUnchanged(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	counting := &countingStore{Store: store}
	g := NewGateway(counting, nil)
	ctx := context.Background()

	structure := &wiki.Structure{
		ID:    "wiki-1",
		Title: "Widget Wiki",
		Pages: []wiki.PageDescriptor{{ID: "intro", Importance: wiki.ImportanceHigh}},
	}
	pages := map[string]wiki.PageContent{
		"intro": {PageID: "intro", Content: "# Intro", State: wiki.PageStateComplete},
	}

	require.NoError(t, g.Save(ctx, testIdentity(), "en", structure, pages))
	require.NoError(t, g.Save(ctx, testIdentity(), "en", structure, pages))
	require.Equal(t, 1, counting.puts, "identical content should not be rewritten")

	changed := map[string]wiki.PageContent{
		"intro": {PageID: "intro", Content: "# Intro, revised", State: wiki.PageStateComplete},
	}
	require.NoError(t, g.Save(ctx, testIdentity(), "en", structure, changed))
	require.Equal(t, 2, counting.puts, "changed page content must reach the store")
}

func TestGatewayDelete(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	g := NewGateway(store, nil)
	ctx := context.Background()

	require.NoError(t, g.Save(ctx, testIdentity(), "en", &wiki.Structure{ID: "w"}, nil))
	require.NoError(t, g.Delete(ctx, testIdentity(), "en"))
	require.Nil(t, g.Load(ctx, testIdentity(), "en"))
}

func TestKVKeySanitization(t *testing.T) {
	k := Key{Owner: "ac me", Repo: "widget.io", HostType: "github", Language: "en"}
	require.Equal(t, "ac_me.widget_io.github.en", kvKey(k))

	require.Equal(t, "_", kvToken(""))
}
