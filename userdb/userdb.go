// Package userdb maintains the runtime user table of a file system instance
// and its serialised form, the classic colon-separated /etc/passwd layout:
//
//	username:password:uid:gid
//
// Passwords are stored and compared in the clear; the format is inherited and
// makes no attempt at secrecy. The table always contains the root user —
// parsing a passwd file that lacks one adds it back.
package userdb

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

var ErrUserExists = errors.New("user already exists")
var ErrUIDInUse = errors.New("uid already in use")
var ErrUnknownUser = errors.New("no such user")
var ErrBadPassword = errors.New("password does not match")
var ErrAlreadyLoggedIn = errors.New("another user is logged in")
var ErrNotLoggedIn = errors.New("no user is logged in")

// passwdFieldCount is the number of colon-separated fields on a passwd line.
const passwdFieldCount = 4

// User is one credentials record. The field order is the on-disk column order.
type User struct {
	Username string `csv:"username"`
	Password string `csv:"password"`
	UID      int    `csv:"uid"`
	GID      int    `csv:"gid"`
}

// Logger matches [log.Logger]'s Printf. Diagnostics about skipped passwd
// lines and rejected operations go through it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Manager is the runtime user table: users by name, users by uid (enforcing
// uid uniqueness), and the single logged-in-user slot.
type Manager struct {
	byName   map[string]User
	byUID    map[int]User
	current  User
	loggedIn bool
	log      Logger
}

// NewManager returns a table whose only user is root:root:0:0.
func NewManager() *Manager {
	manager := &Manager{
		byName: make(map[string]User),
		byUID:  make(map[int]User),
		log:    nopLogger{},
	}
	manager.AddUser("root", "root", 0, 0)
	return manager
}

// SetLogger routes diagnostics to `logger`. A nil logger silences them.
func (manager *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	manager.log = logger
}

// AddUser registers a new user. Both the username and the uid must be unused.
func (manager *Manager) AddUser(username, password string, uid, gid int) error {
	if _, taken := manager.byName[username]; taken {
		return fmt.Errorf("can't add %q: %w", username, ErrUserExists)
	}
	if _, taken := manager.byUID[uid]; taken {
		return fmt.Errorf("can't add %q with uid %d: %w", username, uid, ErrUIDInUse)
	}

	user := User{Username: username, Password: password, UID: uid, GID: gid}
	manager.byName[username] = user
	manager.byUID[uid] = user
	return nil
}

// Login makes `username` the current user. Only one user can be logged in at
// a time; a second login fails until the first logs out.
func (manager *Manager) Login(username, password string) error {
	if manager.loggedIn {
		return fmt.Errorf(
			"can't log in %q while %q is logged in: %w",
			username,
			manager.current.Username,
			ErrAlreadyLoggedIn,
		)
	}

	user, ok := manager.byName[username]
	if !ok {
		return fmt.Errorf("can't log in %q: %w", username, ErrUnknownUser)
	}
	if user.Password != password {
		return fmt.Errorf("can't log in %q: %w", username, ErrBadPassword)
	}

	manager.current = user
	manager.loggedIn = true
	return nil
}

// Logout clears the current user.
func (manager *Manager) Logout() error {
	if !manager.loggedIn {
		return ErrNotLoggedIn
	}
	manager.current = User{}
	manager.loggedIn = false
	return nil
}

// CurrentUser returns the logged-in user, if any.
func (manager *Manager) CurrentUser() (User, bool) {
	return manager.current, manager.loggedIn
}

// Exists reports whether a user with the given name is registered.
func (manager *Manager) Exists(username string) bool {
	_, ok := manager.byName[username]
	return ok
}

// Users returns every registered user, ordered by uid and then by name so the
// serialised table is deterministic.
func (manager *Manager) Users() []User {
	users := make([]User, 0, len(manager.byName))
	for _, user := range manager.byName {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].UID != users[j].UID {
			return users[i].UID < users[j].UID
		}
		return users[i].Username < users[j].Username
	})
	return users
}

// Clear drops every user and logs out whoever was logged in. Unlike a fresh
// manager, the table ends up truly empty — no root user.
func (manager *Manager) Clear() {
	manager.byName = make(map[string]User)
	manager.byUID = make(map[int]User)
	manager.current = User{}
	manager.loggedIn = false
}

// passwdWriter builds the ':'-separated writer the passwd layout needs.
func passwdWriter(out *bytes.Buffer) *gocsv.SafeCSVWriter {
	writer := csv.NewWriter(out)
	writer.Comma = ':'
	return gocsv.NewSafeCSVWriter(writer)
}

// passwdLineReader parses a single passwd line. Each line gets its own reader
// so one malformed line can't poison the rest of the file.
func passwdLineReader(line string) gocsv.CSVReader {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = ':'
	reader.FieldsPerRecord = passwdFieldCount
	return reader
}

// Marshal serialises the table as newline-terminated passwd lines.
func (manager *Manager) Marshal() ([]byte, error) {
	var buffer bytes.Buffer
	if err := gocsv.MarshalCSVWithoutHeaders(manager.Users(), passwdWriter(&buffer)); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Parse rebuilds the table from passwd data. Empty lines are ignored and
// malformed lines are skipped with a diagnostic; the parse as a whole still
// succeeds. A root user is added afterwards if the data didn't carry one, so
// the table is never left without it.
func (manager *Manager) Parse(data []byte) error {
	manager.Clear()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var records []User
		if err := gocsv.UnmarshalCSVWithoutHeaders(passwdLineReader(line), &records); err != nil {
			manager.log.Printf("skipping malformed passwd line %d: %s", lineNumber, err)
			continue
		}

		for _, record := range records {
			if err := manager.AddUser(record.Username, record.Password, record.UID, record.GID); err != nil {
				manager.log.Printf("skipping passwd line %d: %s", lineNumber, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if !manager.Exists("root") {
		manager.AddUser("root", "root", 0, 0)
	}
	return nil
}
