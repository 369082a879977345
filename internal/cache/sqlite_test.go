package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

func testKey() Key {
	return Key{Owner: "acme", Repo: "widget", HostType: "github", Language: "en"}
}

func testRecord() *Record {
	return &Record{
		Structure: &wiki.Structure{
			ID:    "wiki-1",
			Title: "Widget Wiki",
			Pages: []wiki.PageDescriptor{{ID: "intro", Title: "Introduction", Importance: wiki.ImportanceHigh}},
		},
		Pages: map[string]wiki.PageContent{
			"intro": {PageID: "intro", Content: "# Introduction", State: wiki.PageStateComplete},
		},
		SavedAt: time.Now().UTC(),
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := testKey()

	_, err = store.Get(ctx, key)
	require.True(t, IsNotFound(err))

	require.NoError(t, store.Put(ctx, key, testRecord()))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "Widget Wiki", got.Structure.Title)
	require.Equal(t, "# Introduction", got.Pages["intro"].Content)

	// Replacing an existing record is allowed.
	updated := testRecord()
	updated.Structure.Title = "Widget Wiki v2"
	require.NoError(t, store.Put(ctx, key, updated))

	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "Widget Wiki v2", got.Structure.Title)
}

func TestSQLiteStore_KeyIsolation(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, testKey(), testRecord()))

	other := testKey()
	other.Language = "ja"
	_, err = store.Get(ctx, other)
	require.True(t, IsNotFound(err))
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := testKey()

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, key))

	require.NoError(t, store.Put(ctx, key, testRecord()))
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	require.True(t, IsNotFound(err))
}
