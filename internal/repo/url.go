// Package repo resolves repository references: remote URLs are parsed into
// an identity, local paths are validated as real git worktrees.
package repo

import (
	"net/url"
	"path/filepath"
	"strings"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// ParseURL turns a repository reference into an identity. It accepts https
// URLs for the known hosts, scp-style ssh remotes, and local filesystem
// paths. The .git suffix is stripped and the canonical URL is normalized to
// https without it.
func ParseURL(raw string) (wiki.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return wiki.Identity{}, werrors.ValidationError("empty repository reference")
	}

	if isLocalRef(raw) {
		return localIdentity(strings.TrimPrefix(raw, "file://"))
	}

	if owner, repoName, host, ok := parseSCPLike(raw); ok {
		return remoteIdentity(owner, repoName, host)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return wiki.Identity{}, werrors.ValidationError("unparseable repository URL: " + raw)
	}

	segments := splitPath(u.Path)
	if len(segments) < 2 {
		return wiki.Identity{}, werrors.ValidationError("repository URL needs an owner and a repo: " + raw)
	}

	// GitLab allows nested groups; everything before the final segment is
	// the owner path.
	owner := strings.Join(segments[:len(segments)-1], "/")
	repoName := strings.TrimSuffix(segments[len(segments)-1], ".git")
	return remoteIdentity(owner, repoName, u.Host)
}

// HostType classifies a host name into the backend's repository types.
func HostType(host string) string {
	host = strings.ToLower(host)
	switch {
	case strings.Contains(host, "github"):
		return "github"
	case strings.Contains(host, "gitlab"):
		return "gitlab"
	case strings.Contains(host, "bitbucket"):
		return "bitbucket"
	default:
		return "web"
	}
}

func remoteIdentity(owner, repoName, host string) (wiki.Identity, error) {
	if owner == "" || repoName == "" {
		return wiki.Identity{}, werrors.ValidationError("repository URL needs an owner and a repo")
	}
	id := wiki.Identity{
		Owner:        owner,
		Repo:         repoName,
		HostType:     HostType(host),
		CanonicalURL: "https://" + host + "/" + owner + "/" + repoName,
	}
	return id, nil
}

func localIdentity(path string) (wiki.Identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return wiki.Identity{}, werrors.Wrap(err, werrors.CategoryValidation, werrors.SeverityWarning, "resolve local path")
	}
	return wiki.Identity{
		Owner:     "local",
		Repo:      filepath.Base(abs),
		HostType:  "local",
		LocalPath: abs,
	}, nil
}

// parseSCPLike handles git@host:owner/repo.git remotes.
func parseSCPLike(raw string) (owner, repoName, host string, ok bool) {
	if !strings.Contains(raw, "@") || strings.Contains(raw, "://") {
		return "", "", "", false
	}
	at := strings.Index(raw, "@")
	rest := raw[at+1:]
	colon := strings.Index(rest, ":")
	if colon < 1 {
		return "", "", "", false
	}
	host = rest[:colon]
	segments := splitPath(rest[colon+1:])
	if len(segments) < 2 {
		return "", "", "", false
	}
	owner = strings.Join(segments[:len(segments)-1], "/")
	repoName = strings.TrimSuffix(segments[len(segments)-1], ".git")
	return owner, repoName, host, true
}

func isLocalRef(raw string) bool {
	if strings.HasPrefix(raw, "file://") {
		return true
	}
	if strings.Contains(raw, "://") || strings.Contains(raw, "@") {
		return false
	}
	return strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") ||
		strings.HasPrefix(raw, "../") || raw == "." || raw == ".."
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
