package minifs_test

import (
	"testing"

	"github.com/dargueta/minifs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve__Table(t *testing.T) {
	fsys := newFormattedFS(t)

	aInum, err := fsys.Mkdir(minifs.RootInumber, "a")
	require.NoError(t, err)
	bInum, err := fsys.Mkdir(aInum, "b")
	require.NoError(t, err)
	fileInum, err := fsys.Create(bInum, "leaf")
	require.NoError(t, err)

	cases := []struct {
		name     string
		path     string
		base     minifs.Inumber
		expected minifs.Inumber
	}{
		{"root", "/", minifs.RootInumber, minifs.RootInumber},
		{"root with extra slashes", "///", minifs.RootInumber, minifs.RootInumber},
		{"empty path is the base", "", bInum, bInum},
		{"dot is the base", ".", bInum, bInum},
		{"absolute", "/a/b", minifs.RootInumber, bInum},
		{"absolute ignores base", "/a", bInum, aInum},
		{"relative from base", "b", aInum, bInum},
		{"relative chain", "b/leaf", aInum, fileInum},
		{"trailing slash", "/a/", minifs.RootInumber, aInum},
		{"collapsed empty segment", "/a//b", minifs.RootInumber, bInum},
		{"dot segments", "/a/./b/.", minifs.RootInumber, bInum},
		{"parent segment", "/a/b/..", minifs.RootInumber, aInum},
		{"walk to the top", "/a/b/../..", minifs.RootInumber, minifs.RootInumber},
		{"root parent is itself", "/..", minifs.RootInumber, minifs.RootInumber},
		{"relative parent", "..", bInum, aInum},
	}

	for _, entry := range cases {
		t.Run(entry.name, func(t *testing.T) {
			resolved, err := fsys.Resolve(entry.path, entry.base)
			require.NoError(t, err)
			assert.Equal(t, entry.expected, resolved)
		})
	}
}

func TestResolve__Failures(t *testing.T) {
	fsys := newFormattedFS(t)

	aInum, err := fsys.Mkdir(minifs.RootInumber, "a")
	require.NoError(t, err)
	_, err = fsys.Create(aInum, "leaf")
	require.NoError(t, err)

	t.Run("missing segment", func(t *testing.T) {
		_, err := fsys.Resolve("/a/nope", minifs.RootInumber)
		assert.ErrorIs(t, err, minifs.ErrNotFound)
	})

	t.Run("file used as a directory", func(t *testing.T) {
		_, err := fsys.Resolve("/a/leaf/deeper", minifs.RootInumber)
		assert.ErrorIs(t, err, minifs.ErrNotADirectory)
	})

	t.Run("unallocated base", func(t *testing.T) {
		_, err := fsys.Resolve("x", minifs.Inumber(42))
		assert.Error(t, err)
	})

	t.Run("oversized segment", func(t *testing.T) {
		_, err := fsys.Resolve(
			"/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			minifs.RootInumber,
		)
		assert.ErrorIs(t, err, minifs.ErrNameTooLong)
	})
}
