package minifs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// DirEntry is one live directory entry, in storage order.
type DirEntry struct {
	Name    string
	Inumber Inumber
}

func newRawDirent(inum Inumber, name string) RawDirent {
	dirent := RawDirent{Inumber: inum}
	copy(dirent.Name[:], name)
	return dirent
}

// name returns the entry's name up to the terminating null byte.
func (dirent *RawDirent) name() string {
	end := bytes.IndexByte(dirent.Name[:], 0)
	if end == -1 {
		end = len(dirent.Name)
	}
	return string(dirent.Name[:end])
}

// checkEntryName rejects names that can't be stored or that collide with the
// self and parent entries every directory already has.
func checkEntryName(name string) error {
	if name == "" {
		return ErrInvalidArgument.WithMessage("entry name is empty")
	}
	if name == "." || name == ".." {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q is not a usable entry name", name),
		)
	}
	if len(name) >= DirNameSize {
		return ErrNameTooLong.WithMessage(
			fmt.Sprintf(
				"entry name %q exceeds %d bytes",
				name,
				DirNameSize-1,
			),
		)
	}
	return nil
}

// direntSlot returns the byte range of entry `index` in a directory's block.
func direntSlot(dirBlock []byte, index int) []byte {
	return dirBlock[index*DirentSize : (index+1)*DirentSize]
}

// readDirents decodes the live entries of a directory. The entry count comes
// from the inode size; slots past it are empty by invariant.
func (fsys *FileSystem) readDirents(dir Inode) ([]RawDirent, error) {
	if !dir.IsDir() {
		return nil, ErrNotADirectory.WithMessage(
			fmt.Sprintf("inode %d is not a directory", dir.Inumber),
		)
	}

	dirBlock, err := fsys.img.Slice(dir.Addrs[0], 1)
	if err != nil {
		return nil, err
	}

	count := dir.Size / DirentSize
	entries := make([]RawDirent, count)
	for i := 0; i < count; i++ {
		reader := bytes.NewReader(direntSlot(dirBlock, i))
		if err := binary.Read(reader, byteOrder, &entries[i]); err != nil {
			return nil, ErrIOFailed.Wrap(err)
		}
	}
	return entries, nil
}

// writeDirent encodes one entry into slot `index` of a directory's block.
func (fsys *FileSystem) writeDirent(dir Inode, index int, dirent RawDirent) error {
	dirBlock, err := fsys.img.Slice(dir.Addrs[0], 1)
	if err != nil {
		return err
	}

	writer := bytewriter.New(direntSlot(dirBlock, index))
	if err := binary.Write(writer, byteOrder, &dirent); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

// lookupInDir scans directory `dirInum` for an entry named `name` and returns
// its inode number. The comparison is an exact byte match against the stored
// null-terminated name.
func (fsys *FileSystem) lookupInDir(dirInum Inumber, name string) (Inumber, error) {
	if len(name) >= DirNameSize {
		return InvalidInumber, ErrNameTooLong.WithMessage(
			fmt.Sprintf("entry name %q exceeds %d bytes", name, DirNameSize-1),
		)
	}

	dir, err := fsys.getInode(dirInum)
	if err != nil {
		return InvalidInumber, err
	}

	entries, err := fsys.readDirents(dir)
	if err != nil {
		return InvalidInumber, err
	}
	for i := range entries {
		if entries[i].name() == name {
			return entries[i].Inumber, nil
		}
	}
	return InvalidInumber, ErrNotFound.WithMessage(
		fmt.Sprintf("no entry %q in directory %d", name, dirInum),
	)
}

// List returns the live entries of a directory in storage order.
func (fsys *FileSystem) List(dirInum Inumber) ([]DirEntry, error) {
	dir, err := fsys.getInode(dirInum)
	if err != nil {
		return nil, err
	}

	entries, err := fsys.readDirents(dir)
	if err != nil {
		return nil, err
	}

	listing := make([]DirEntry, len(entries))
	for i := range entries {
		listing[i] = DirEntry{Name: entries[i].name(), Inumber: entries[i].Inumber}
	}
	return listing, nil
}

// ListRoot lists the root directory.
func (fsys *FileSystem) ListRoot() ([]DirEntry, error) {
	return fsys.List(RootInumber)
}

// appendDirent adds an entry to `parent` and persists the grown inode. The
// caller has already verified the name is free and the directory has room.
func (fsys *FileSystem) appendDirent(parent Inode, dirent RawDirent) error {
	index := parent.Size / DirentSize
	if err := fsys.writeDirent(parent, index, dirent); err != nil {
		return err
	}
	parent.Size += DirentSize
	return fsys.putInode(parent)
}

// removeDirent deletes entry `index` from `parent` by moving the last live
// entry into its slot and shrinking the directory by one entry. The vacated
// slot is zeroed so empty slots stay empty.
func (fsys *FileSystem) removeDirent(parent Inode, index int) (Inode, error) {
	lastIndex := parent.Size/DirentSize - 1
	if index != lastIndex {
		entries, err := fsys.readDirents(parent)
		if err != nil {
			return parent, err
		}
		if err := fsys.writeDirent(parent, index, entries[lastIndex]); err != nil {
			return parent, err
		}
	}
	if err := fsys.writeDirent(parent, lastIndex, RawDirent{}); err != nil {
		return parent, err
	}

	parent.Size -= DirentSize
	if err := fsys.putInode(parent); err != nil {
		return parent, err
	}
	return parent, nil
}

// prepareNewEntry runs the shared validation for Mkdir and Create: the name
// is usable, the parent is a directory with a free slot, and the name isn't
// taken. It returns the parent inode on success.
func (fsys *FileSystem) prepareNewEntry(parentInum Inumber, name string) (Inode, error) {
	if err := checkEntryName(name); err != nil {
		return Inode{}, err
	}

	parent, err := fsys.getInode(parentInum)
	if err != nil {
		return Inode{}, err
	}
	if !parent.IsDir() {
		return Inode{}, ErrNotADirectory.WithMessage(
			fmt.Sprintf("inode %d is not a directory", parentInum),
		)
	}

	entries, err := fsys.readDirents(parent)
	if err != nil {
		return Inode{}, err
	}
	for i := range entries {
		if entries[i].name() == name {
			return Inode{}, ErrExists.WithMessage(
				fmt.Sprintf("entry %q already exists in directory %d", name, parentInum),
			)
		}
	}
	if len(entries) >= DirentsPerBlock {
		return Inode{}, ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"directory %d is full (%d entries)",
				parentInum,
				DirentsPerBlock,
			),
		)
	}
	return parent, nil
}

// Mkdir creates a directory named `name` under `parentInum` and returns the
// new inode number. The child starts out with its "." and ".." entries; the
// parent gains a link for the child's "..".
func (fsys *FileSystem) Mkdir(parentInum Inumber, name string) (Inumber, error) {
	parent, err := fsys.prepareNewEntry(parentInum, name)
	if err != nil {
		return InvalidInumber, err
	}

	childInum, err := fsys.ialloc(TypeDir)
	if err != nil {
		return InvalidInumber, err
	}
	childBlock, err := fsys.balloc()
	if err != nil {
		// Hand back the inode so a failed mkdir leaves no trace.
		fsys.ifree(childInum)
		return InvalidInumber, err
	}

	child := Inode{
		Inumber: childInum,
		Type:    TypeDir,
		Nlinks:  2,
		Size:    2 * DirentSize,
	}
	child.Addrs[0] = childBlock
	if err := fsys.putInode(child); err != nil {
		return InvalidInumber, err
	}
	if err := fsys.writeDirent(child, 0, newRawDirent(childInum, ".")); err != nil {
		return InvalidInumber, err
	}
	if err := fsys.writeDirent(child, 1, newRawDirent(parentInum, "..")); err != nil {
		return InvalidInumber, err
	}

	parent.Nlinks++
	if err := fsys.appendDirent(parent, newRawDirent(childInum, name)); err != nil {
		return InvalidInumber, err
	}

	fsys.log.Printf("created directory %q (inode %d) under %d", name, childInum, parentInum)
	return childInum, nil
}

// Create creates an empty regular file named `name` under `parentInum` and
// returns the new inode number. The file starts with one zero-filled data
// block and a size of zero.
func (fsys *FileSystem) Create(parentInum Inumber, name string) (Inumber, error) {
	parent, err := fsys.prepareNewEntry(parentInum, name)
	if err != nil {
		return InvalidInumber, err
	}

	childInum, err := fsys.ialloc(TypeFile)
	if err != nil {
		return InvalidInumber, err
	}
	childBlock, err := fsys.balloc()
	if err != nil {
		fsys.ifree(childInum)
		return InvalidInumber, err
	}

	child := Inode{
		Inumber: childInum,
		Type:    TypeFile,
		Nlinks:  1,
		Size:    0,
	}
	child.Addrs[0] = childBlock
	if err := fsys.putInode(child); err != nil {
		return InvalidInumber, err
	}

	if err := fsys.appendDirent(parent, newRawDirent(childInum, name)); err != nil {
		return InvalidInumber, err
	}

	fsys.log.Printf("created file %q (inode %d) under %d", name, childInum, parentInum)
	return childInum, nil
}

// freeInodeStorage releases every data block an inode owns, clears the record
// down to an empty shell, and frees the inode itself.
func (fsys *FileSystem) freeInodeStorage(inode Inode) error {
	for i, addr := range inode.Addrs {
		if addr == 0 {
			continue
		}
		if err := fsys.bfree(addr); err != nil {
			return err
		}
		inode.Addrs[i] = 0
	}
	inode.Size = 0
	inode.Nlinks = 0
	if err := fsys.putInode(inode); err != nil {
		return err
	}
	return fsys.ifree(inode.Inumber)
}

// findDirentIndex locates `name` among `entries`, or returns -1.
func findDirentIndex(entries []RawDirent, name string) int {
	for i := range entries {
		if entries[i].name() == name {
			return i
		}
	}
	return -1
}

// Rmdir removes the directory named `name` from `parentInum`. The target must
// contain nothing besides its "." and ".." entries.
func (fsys *FileSystem) Rmdir(parentInum Inumber, name string) error {
	if err := checkEntryName(name); err != nil {
		return err
	}

	parent, err := fsys.getInode(parentInum)
	if err != nil {
		return err
	}
	entries, err := fsys.readDirents(parent)
	if err != nil {
		return err
	}

	index := findDirentIndex(entries, name)
	if index == -1 {
		return ErrNotFound.WithMessage(
			fmt.Sprintf("no entry %q in directory %d", name, parentInum),
		)
	}

	target, err := fsys.getInode(entries[index].Inumber)
	if err != nil {
		return err
	}
	if !target.IsDir() {
		return ErrNotADirectory.WithMessage(
			fmt.Sprintf("%q is not a directory", name),
		)
	}
	if target.Size > 2*DirentSize {
		return ErrDirectoryNotEmpty.WithMessage(
			fmt.Sprintf("directory %q still has entries", name),
		)
	}

	parent, err = fsys.removeDirent(parent, index)
	if err != nil {
		return err
	}
	parent.Nlinks--
	if err := fsys.putInode(parent); err != nil {
		return err
	}

	return fsys.freeInodeStorage(target)
}

// Unlink removes the regular file named `name` from `parentInum` and releases
// its storage. A file with an open descriptor can't be removed.
func (fsys *FileSystem) Unlink(parentInum Inumber, name string) error {
	if err := checkEntryName(name); err != nil {
		return err
	}

	parent, err := fsys.getInode(parentInum)
	if err != nil {
		return err
	}
	entries, err := fsys.readDirents(parent)
	if err != nil {
		return err
	}

	index := findDirentIndex(entries, name)
	if index == -1 {
		return ErrNotFound.WithMessage(
			fmt.Sprintf("no entry %q in directory %d", name, parentInum),
		)
	}

	target, err := fsys.getInode(entries[index].Inumber)
	if err != nil {
		return err
	}
	if !target.IsFile() {
		return ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is not a regular file", name),
		)
	}
	for fd := range fsys.fds {
		if fsys.fds[fd].inUse && fsys.fds[fd].inum == target.Inumber {
			return ErrBusy.WithMessage(
				fmt.Sprintf("%q is open on descriptor %d", name, fd),
			)
		}
	}

	if _, err := fsys.removeDirent(parent, index); err != nil {
		return err
	}
	return fsys.freeInodeStorage(target)
}
