package repo

import (
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
)

// Local is a validated git repository on disk.
type Local struct {
	path string
	repo *git.Repository
}

// OpenLocal validates that the path holds a git repository.
func OpenLocal(dir string) (*Local, error) {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError,
			"not a git repository: "+dir)
	}
	return &Local{path: dir, repo: r}, nil
}

// Path returns the worktree path.
func (l *Local) Path() string { return l.path }

// HeadRef returns the abbreviated commit hash of HEAD.
func (l *Local) HeadRef() (string, error) {
	head, err := l.repo.Head()
	if err != nil {
		return "", werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError, "resolve HEAD")
	}
	return head.Hash().String()[:8], nil
}

// Files lists the tracked files at HEAD, minus the exclusion lists. Directory
// exclusions match any path segment prefix; file exclusions match the base
// name or the full path.
func (l *Local) Files(excludedDirs, excludedFiles []string) ([]string, error) {
	head, err := l.repo.Head()
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError, "resolve HEAD")
	}
	commit, err := l.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError, "load HEAD commit")
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError, "load HEAD tree")
	}

	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if excluded(f.Name, excludedDirs, excludedFiles) {
			return nil
		}
		files = append(files, f.Name)
		return nil
	})
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryRepository, werrors.SeverityError, "walk HEAD tree")
	}
	return files, nil
}

func excluded(name string, excludedDirs, excludedFiles []string) bool {
	for _, d := range excludedDirs {
		d = strings.Trim(d, "/")
		if d == "" {
			continue
		}
		if name == d || strings.HasPrefix(name, d+"/") || strings.Contains(name, "/"+d+"/") {
			return true
		}
	}
	base := path.Base(name)
	for _, f := range excludedFiles {
		if f == "" {
			continue
		}
		if name == f || base == f {
			return true
		}
	}
	return false
}
