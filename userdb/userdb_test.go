package userdb_test

import (
	"testing"

	"github.com/dargueta/minifs/userdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager__HasRoot(t *testing.T) {
	manager := userdb.NewManager()

	assert.True(t, manager.Exists("root"))
	users := manager.Users()
	require.Len(t, users, 1)
	assert.Equal(t, userdb.User{Username: "root", Password: "root", UID: 0, GID: 0}, users[0])
}

func TestAddUser__Uniqueness(t *testing.T) {
	manager := userdb.NewManager()

	require.NoError(t, manager.AddUser("alice", "pw", 1000, 1000))

	err := manager.AddUser("alice", "other", 1001, 1001)
	assert.ErrorIs(t, err, userdb.ErrUserExists)

	err = manager.AddUser("bob", "pw", 1000, 1000)
	assert.ErrorIs(t, err, userdb.ErrUIDInUse, "uids are unique across users")

	assert.False(t, manager.Exists("bob"))
}

func TestLogin__Lifecycle(t *testing.T) {
	manager := userdb.NewManager()
	require.NoError(t, manager.AddUser("alice", "pw", 1000, 1000))

	_, loggedIn := manager.CurrentUser()
	assert.False(t, loggedIn)

	t.Run("wrong password", func(t *testing.T) {
		assert.ErrorIs(t, manager.Login("alice", "nope"), userdb.ErrBadPassword)
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.ErrorIs(t, manager.Login("mallory", "pw"), userdb.ErrUnknownUser)
	})

	require.NoError(t, manager.Login("alice", "pw"))
	current, loggedIn := manager.CurrentUser()
	assert.True(t, loggedIn)
	assert.Equal(t, "alice", current.Username)

	t.Run("login is exclusive", func(t *testing.T) {
		assert.ErrorIs(t, manager.Login("root", "root"), userdb.ErrAlreadyLoggedIn)
	})

	require.NoError(t, manager.Logout())
	_, loggedIn = manager.CurrentUser()
	assert.False(t, loggedIn)

	t.Run("logout needs a session", func(t *testing.T) {
		assert.ErrorIs(t, manager.Logout(), userdb.ErrNotLoggedIn)
	})
}

func TestMarshal__SortedPasswdLines(t *testing.T) {
	manager := userdb.NewManager()
	require.NoError(t, manager.AddUser("zoe", "zz", 1002, 1002))
	require.NoError(t, manager.AddUser("amy", "aa", 1001, 1001))

	data, err := manager.Marshal()
	require.NoError(t, err)
	assert.Equal(
		t,
		"root:root:0:0\namy:aa:1001:1001\nzoe:zz:1002:1002\n",
		string(data),
		"records are ordered by uid so output is deterministic",
	)
}

func TestParse__RoundTrip(t *testing.T) {
	manager := userdb.NewManager()
	require.NoError(t, manager.AddUser("amy", "aa", 1001, 1001))

	data, err := manager.Marshal()
	require.NoError(t, err)

	restored := userdb.NewManager()
	require.NoError(t, restored.Parse(data))

	assert.Equal(t, manager.Users(), restored.Users())
}

func TestParse__ToleratesJunk(t *testing.T) {
	manager := userdb.NewManager()

	input := "" +
		"amy:aa:1001:1001\n" +
		"\n" + // blank lines are fine
		"not-a-passwd-line\n" + // wrong field count
		"bad:uid:abc:3\n" + // uid isn't a number
		"trunc:ated:5\n" + // one field short
		"zoe:zz:1002:1002\n"

	require.NoError(t, manager.Parse([]byte(input)),
		"junk lines are skipped, not fatal")

	assert.True(t, manager.Exists("amy"))
	assert.True(t, manager.Exists("zoe"))
	assert.False(t, manager.Exists("not-a-passwd-line"))
	assert.False(t, manager.Exists("bad"))
	assert.False(t, manager.Exists("trunc"))
	assert.True(t, manager.Exists("root"),
		"the root user is restored even when the input lacks one")
}

func TestParse__ReplacesExistingTable(t *testing.T) {
	manager := userdb.NewManager()
	require.NoError(t, manager.AddUser("gone", "gg", 500, 500))

	require.NoError(t, manager.Parse([]byte("kept:kk:600:600\nroot:hunter2:0:0\n")))

	assert.False(t, manager.Exists("gone"))
	assert.True(t, manager.Exists("kept"))

	// The parsed root wins over the default one.
	require.NoError(t, manager.Login("root", "hunter2"))
}

func TestClear__EmptiesEverything(t *testing.T) {
	manager := userdb.NewManager()
	require.NoError(t, manager.AddUser("amy", "aa", 1001, 1001))
	require.NoError(t, manager.Login("amy", "aa"))

	manager.Clear()

	assert.Empty(t, manager.Users())
	_, loggedIn := manager.CurrentUser()
	assert.False(t, loggedIn)
}
