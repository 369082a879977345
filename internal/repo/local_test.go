package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
)

// initRepo creates a throwaway git repository with a few committed files.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	w, err := r.Worktree()
	require.NoError(t, err)

	for _, name := range []string{"README.md", "main.go", "node_modules/dep/index.js"} {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x\n"), 0o644))
		_, err = w.Add(name)
		require.NoError(t, err)
	}

	_, err = w.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestOpenLocal_RejectsNonRepo(t *testing.T) {
	_, err := OpenLocal(t.TempDir())
	require.Error(t, err)
	require.True(t, werrors.IsCategory(err, werrors.CategoryRepository))
}

func TestLocal_FilesAndHead(t *testing.T) {
	dir := initRepo(t)

	l, err := OpenLocal(dir)
	require.NoError(t, err)
	require.Equal(t, dir, l.Path())

	ref, err := l.HeadRef()
	require.NoError(t, err)
	require.Len(t, ref, 8)

	files, err := l.Files(nil, nil)
	require.NoError(t, err)
	require.Contains(t, files, "README.md")
	require.Contains(t, files, "node_modules/dep/index.js")

	filtered, err := l.Files([]string{"node_modules"}, []string{"README.md"})
	require.NoError(t, err)
	require.Equal(t, []string{"main.go"}, filtered)
}
