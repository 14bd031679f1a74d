package minifs_test

import (
	"testing"

	"github.com/dargueta/minifs"
	"github.com/dargueta/minifs/userdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUsers__CreatesEtcPasswd(t *testing.T) {
	fsys := newFormattedFS(t)

	require.NoError(t, fsys.Users().AddUser("alice", "wonder", 1000, 1000))
	require.NoError(t, fsys.SaveUsers())

	etcInum, err := fsys.Resolve("/etc", minifs.RootInumber)
	require.NoError(t, err, "SaveUsers must create /etc when it's missing")

	passwdInum, err := fsys.Resolve("/etc/passwd", minifs.RootInumber)
	require.NoError(t, err)

	inode, err := fsys.Stat(passwdInum)
	require.NoError(t, err)
	assert.True(t, inode.IsFile())

	fd, err := fsys.Open(etcInum, "passwd", minifs.O_RDONLY)
	require.NoError(t, err)
	buffer := make([]byte, minifs.MaxFileSize)
	n, err := fsys.Read(fd, buffer)
	require.NoError(t, err)
	require.NoError(t, fsys.Close(fd))

	assert.Equal(t, "root:root:0:0\nalice:wonder:1000:1000\n", string(buffer[:n]))
	assert.NoError(t, fsys.CheckConsistency())
}

func TestSaveUsers__OverwritesPreviousTable(t *testing.T) {
	fsys := newFormattedFS(t)

	require.NoError(t, fsys.SaveUsers())
	require.NoError(t, fsys.Users().AddUser("bob", "builder", 1001, 1001))
	require.NoError(t, fsys.SaveUsers())

	other := minifs.New()
	require.NoError(t, other.Format())
	// Move the table through /etc/passwd to prove it round-trips.
	require.NoError(t, copyUsersViaPasswd(t, fsys, other))

	assert.True(t, other.Users().Exists("bob"))
	assert.True(t, other.Users().Exists("root"))
}

// copyUsersViaPasswd reads /etc/passwd out of `source` and installs it in
// `destination` the same way a Load would.
func copyUsersViaPasswd(t *testing.T, source, destination *minifs.FileSystem) error {
	t.Helper()

	etcInum, err := source.Resolve("/etc", minifs.RootInumber)
	require.NoError(t, err)
	fd, err := source.Open(etcInum, "passwd", minifs.O_RDONLY)
	require.NoError(t, err)
	defer source.Close(fd)

	buffer := make([]byte, minifs.MaxFileSize)
	n, err := source.Read(fd, buffer)
	require.NoError(t, err)

	return destination.Users().Parse(buffer[:n])
}

func TestLoadUsers__MissingFile(t *testing.T) {
	fsys := newFormattedFS(t)

	err := fsys.LoadUsers()
	assert.ErrorIs(t, err, minifs.ErrNotFound,
		"a fresh image has no /etc/passwd yet")
}

func TestLoadUsers__RebuildsTable(t *testing.T) {
	fsys := newFormattedFS(t)

	require.NoError(t, fsys.Users().AddUser("carol", "pw", 1002, 1002))
	require.NoError(t, fsys.SaveUsers())

	// Wreck the runtime table, then restore it from the file system.
	fsys.Users().Clear()
	require.False(t, fsys.Users().Exists("root"))

	require.NoError(t, fsys.LoadUsers())
	assert.True(t, fsys.Users().Exists("root"))
	assert.True(t, fsys.Users().Exists("carol"))
}

func TestFormatPreservingUsers(t *testing.T) {
	fsys := newFormattedFS(t)

	require.NoError(t, fsys.Users().AddUser("dave", "pw", 1003, 1003))
	_, err := fsys.Mkdir(minifs.RootInumber, "doomed")
	require.NoError(t, err)

	require.NoError(t, fsys.FormatPreservingUsers())

	_, err = fsys.Resolve("/doomed", minifs.RootInumber)
	assert.ErrorIs(t, err, minifs.ErrNotFound, "formatting wipes the tree")

	_, err = fsys.Resolve("/etc/passwd", minifs.RootInumber)
	assert.NoError(t, err, "the user table survives inside the fresh image")

	require.NoError(t, fsys.LoadUsers())
	assert.True(t, fsys.Users().Exists("dave"))
	assert.NoError(t, fsys.CheckConsistency())
}

func TestUsers__DefaultTable(t *testing.T) {
	fsys := minifs.New()

	users := fsys.Users().Users()
	require.Len(t, users, 1)
	assert.Equal(t, userdb.User{Username: "root", Password: "root", UID: 0, GID: 0}, users[0])
}
