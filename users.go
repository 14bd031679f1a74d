package minifs

import (
	"errors"
	"fmt"
)

const passwdDirName = "etc"
const passwdFileName = "passwd"

// SaveUsers serialises the runtime user table to /etc/passwd inside the file
// system, creating /etc and the file as needed and replacing any previous
// contents.
func (fsys *FileSystem) SaveUsers() error {
	etcInum, err := fsys.Resolve("/"+passwdDirName, RootInumber)
	if errors.Is(err, ErrNotFound) {
		etcInum, err = fsys.Mkdir(RootInumber, passwdDirName)
	}
	if err != nil {
		return err
	}

	// Recreating the file is the simplest way to truncate it.
	if _, lookupErr := fsys.lookupInDir(etcInum, passwdFileName); lookupErr == nil {
		if err := fsys.Unlink(etcInum, passwdFileName); err != nil {
			return err
		}
	}
	if _, err := fsys.Create(etcInum, passwdFileName); err != nil {
		return err
	}

	data, err := fsys.users.Marshal()
	if err != nil {
		return ErrIOFailed.Wrap(err)
	}

	fd, err := fsys.Open(etcInum, passwdFileName, O_WRONLY)
	if err != nil {
		return err
	}
	defer fsys.Close(fd)

	written, err := fsys.Write(fd, data)
	if err != nil {
		return err
	}
	if written != len(data) {
		return ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf(
				"user table needs %d bytes, only %d fit",
				len(data),
				written,
			),
		)
	}

	fsys.log.Printf("saved %d users to /etc/passwd", len(fsys.users.Users()))
	return nil
}

// LoadUsers rebuilds the runtime user table from /etc/passwd. Missing
// directory or file surfaces as [ErrNotFound]; a present but partly malformed
// file still loads, with the bad lines skipped.
func (fsys *FileSystem) LoadUsers() error {
	etcInum, err := fsys.Resolve("/"+passwdDirName, RootInumber)
	if err != nil {
		return err
	}
	if _, err := fsys.lookupInDir(etcInum, passwdFileName); err != nil {
		return err
	}

	fd, err := fsys.Open(etcInum, passwdFileName, O_RDONLY)
	if err != nil {
		return err
	}
	defer fsys.Close(fd)

	buffer := make([]byte, MaxFileSize)
	produced, err := fsys.Read(fd, buffer)
	if err != nil {
		return err
	}

	if err := fsys.users.Parse(buffer[:produced]); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	fsys.log.Printf("loaded %d users from /etc/passwd", len(fsys.users.Users()))
	return nil
}
