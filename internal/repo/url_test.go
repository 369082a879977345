package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURL_GitHub(t *testing.T) {
	id, err := ParseURL("https://github.com/acme/widget")
	require.NoError(t, err)
	require.Equal(t, "acme", id.Owner)
	require.Equal(t, "widget", id.Repo)
	require.Equal(t, "github", id.HostType)
	require.Equal(t, "https://github.com/acme/widget", id.CanonicalURL)
}

func TestParseURL_StripsGitSuffix(t *testing.T) {
	id, err := ParseURL("https://github.com/acme/widget.git")
	require.NoError(t, err)
	require.Equal(t, "widget", id.Repo)
	require.Equal(t, "https://github.com/acme/widget", id.CanonicalURL)
}

func TestParseURL_GitLabNestedGroups(t *testing.T) {
	id, err := ParseURL("https://gitlab.com/group/subgroup/widget")
	require.NoError(t, err)
	require.Equal(t, "group/subgroup", id.Owner)
	require.Equal(t, "widget", id.Repo)
	require.Equal(t, "gitlab", id.HostType)
}

func TestParseURL_Bitbucket(t *testing.T) {
	id, err := ParseURL("https://bitbucket.org/acme/widget")
	require.NoError(t, err)
	require.Equal(t, "bitbucket", id.HostType)
}

func TestParseURL_SelfHostedFallsBackToWeb(t *testing.T) {
	id, err := ParseURL("https://git.example.com/acme/widget")
	require.NoError(t, err)
	require.Equal(t, "web", id.HostType)
}

func TestParseURL_SCPLikeRemote(t *testing.T) {
	id, err := ParseURL("git@github.com:acme/widget.git")
	require.NoError(t, err)
	require.Equal(t, "acme", id.Owner)
	require.Equal(t, "widget", id.Repo)
	require.Equal(t, "github", id.HostType)
	require.Equal(t, "https://github.com/acme/widget", id.CanonicalURL)
}

func TestParseURL_LocalPath(t *testing.T) {
	id, err := ParseURL("/srv/repos/widget")
	require.NoError(t, err)
	require.Equal(t, "local", id.HostType)
	require.Equal(t, "widget", id.Repo)
	require.Equal(t, "/srv/repos/widget", id.LocalPath)
	require.NoError(t, id.Validate())
}

func TestParseURL_FileScheme(t *testing.T) {
	id, err := ParseURL("file:///srv/repos/widget")
	require.NoError(t, err)
	require.Equal(t, "local", id.HostType)
	require.Equal(t, "/srv/repos/widget", id.LocalPath)
}

func TestParseURL_Rejections(t *testing.T) {
	for _, raw := range []string{"", "https://github.com/acme", "not a url at all"} {
		_, err := ParseURL(raw)
		require.Error(t, err, raw)
	}
}

func TestExcluded(t *testing.T) {
	dirs := []string{"node_modules", "vendor/"}
	files := []string{"package-lock.json"}

	require.True(t, excluded("node_modules/left-pad/index.js", dirs, files))
	require.True(t, excluded("web/node_modules/x.js", dirs, files))
	require.True(t, excluded("vendor/lib/a.go", dirs, files))
	require.True(t, excluded("package-lock.json", dirs, files))
	require.True(t, excluded("web/package-lock.json", dirs, files))
	require.False(t, excluded("internal/widget.go", dirs, files))
}
