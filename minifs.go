// Package minifs implements a classical UNIX-style file system over a
// fixed-size block image: superblock, inode and data allocation bitmaps, an
// inode table with direct block pointers, single-block directories, and a
// small per-instance descriptor table for byte-range file I/O. A user table
// serialised to /etc/passwd inside the file system rounds out the picture.
//
// The whole image lives in memory; Save and Load move it to and from a host
// file in one piece. A single FileSystem value owns its image and descriptor
// table, and nothing is shared between instances, so the zero-concurrency
// model is simply "one goroutine per FileSystem".
package minifs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/minifs/userdb"
)

// fileDescriptor is one slot of the open-file table.
type fileDescriptor struct {
	inUse    bool
	inum     Inumber
	mode     IOFlags
	position int
}

// FileSystem is a mounted image plus the runtime state that projects it to
// callers: the descriptor table and the user table. Create one with [New],
// then either [FileSystem.Format] it or [FileSystem.Load] an existing image.
type FileSystem struct {
	img   *Image
	fds   [MaxOpenFiles]fileDescriptor
	users *userdb.Manager
	log   Logger

	// ReadsTrackPosition selects how Read treats the descriptor offset.
	// Historically every read starts at byte 0 of the file no matter how much
	// has already been read, and that is the default. Setting this makes reads
	// consume the descriptor offset the way writes already do.
	ReadsTrackPosition bool
}

// New returns a file system over a zero-filled image. The image has no valid
// structure yet; call [FileSystem.Format] or [FileSystem.Load] before using it.
func New() *FileSystem {
	return &FileSystem{
		img:   NewImage(BlockSize, BlockCount),
		users: userdb.NewManager(),
		log:   NopLogger,
	}
}

// SetLogger routes diagnostics to `logger`. A nil logger silences them.
func (fsys *FileSystem) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger
	}
	fsys.log = logger
	fsys.users.SetLogger(logger)
}

// Image exposes the backing image, mainly for whole-image inspection in tests
// and tooling. Mutating it directly voids the consistency guarantees.
func (fsys *FileSystem) Image() *Image {
	return fsys.img
}

// Users returns the runtime user table. It is rebuilt from /etc/passwd on
// every [FileSystem.Load].
func (fsys *FileSystem) Users() *userdb.Manager {
	return fsys.users
}

// Save writes the image to a host file, preserving any previous copy as
// `<path>.bak`. The descriptor and user tables are runtime state and are not
// part of the image beyond what [FileSystem.SaveUsers] already wrote into it.
func (fsys *FileSystem) Save(path string) error {
	return fsys.img.Save(path)
}

// Load replaces the image with the contents of a host file. The file must be
// exactly the size of an image and carry a superblock matching the build-time
// layout; otherwise the call fails with [ErrFileSystemCorrupted] and the
// current image is left untouched. On success every open descriptor is
// invalidated and the user table is rebuilt from /etc/passwd, or reset to just
// the root user if the image has no readable /etc/passwd.
func (fsys *FileSystem) Load(path string) error {
	data, err := ReadImageFile(path, fsys.img.Size())
	if err != nil {
		return err
	}

	var sb RawSuperblock
	if err := binary.Read(bytes.NewReader(data), byteOrder, &sb); err != nil {
		return ErrFileSystemCorrupted.Wrap(err)
	}
	if err := validateSuperblock(sb); err != nil {
		return err
	}

	if err := fsys.img.replaceContents(data); err != nil {
		return err
	}

	fsys.fds = [MaxOpenFiles]fileDescriptor{}

	if err := fsys.LoadUsers(); err != nil {
		fsys.log.Printf("no user table in image, starting with defaults: %s", err)
		// An empty passwd leaves just the root user.
		fsys.users.Parse(nil)
	}
	return nil
}

// expectedSuperblock returns the superblock implied by the build-time layout.
func expectedSuperblock() RawSuperblock {
	return RawSuperblock{
		TotalBlocks:      BlockCount,
		NumInodes:        NumInodes,
		NumDataBlocks:    NumDataBlocks,
		InodeStart:       InodeStart,
		DataStart:        DataStart,
		InodeBitmapStart: InodeBitmapStart,
		DataBitmapStart:  DataBitmapStart,
	}
}

// validateSuperblock checks a deserialized superblock against the layout.
func validateSuperblock(sb RawSuperblock) error {
	if sb != expectedSuperblock() {
		return ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"superblock disagrees with the %d-block layout: %+v",
				BlockCount,
				sb,
			),
		)
	}
	return nil
}

// readSuperblock deserializes the superblock from block 0.
func (fsys *FileSystem) readSuperblock() (RawSuperblock, error) {
	raw, err := fsys.img.Slice(SuperblockStart, 1)
	if err != nil {
		return RawSuperblock{}, err
	}

	var sb RawSuperblock
	if err := binary.Read(bytes.NewReader(raw), byteOrder, &sb); err != nil {
		return RawSuperblock{}, ErrIOFailed.Wrap(err)
	}
	return sb, nil
}
