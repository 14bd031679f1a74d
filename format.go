package minifs

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Format initialises the image from scratch: superblock, empty bitmaps, an
// all-free inode table, and a root directory at inode 1 whose "." and ".."
// entries both point at itself. Any open descriptors are invalidated; the
// runtime user table is left alone.
func (fsys *FileSystem) Format() error {
	// Superblock first. The rest of block 0 stays zero.
	sbSlice, err := fsys.img.Slice(SuperblockStart, 1)
	if err != nil {
		return err
	}
	for i := range sbSlice {
		sbSlice[i] = 0
	}
	sb := expectedSuperblock()
	if err := binary.Write(bytewriter.New(sbSlice), byteOrder, &sb); err != nil {
		return ErrIOFailed.Wrap(err)
	}

	// Both bitmaps start out empty. This has to happen before the root
	// directory is carved out below, since that sets the first bits.
	for _, start := range []PhysicalBlock{InodeBitmapStart, DataBitmapStart} {
		bitmapSlice, err := fsys.img.Slice(start, 1)
		if err != nil {
			return err
		}
		for i := range bitmapSlice {
			bitmapSlice[i] = 0
		}
	}

	// Stamp a free record into every inode slot.
	for i := 0; i < NumInodes; i++ {
		if err := fsys.writeInode(Inumber(i), RawInode{Type: TypeFree}); err != nil {
			return err
		}
	}

	// The root directory occupies inode 1 and the first data block. Its "."
	// and ".." both refer to itself; that self-reference is what terminates
	// upward path traversal.
	const rootDataBlock = PhysicalBlock(DataStart)
	root := Inode{
		Inumber: RootInumber,
		Type:    TypeDir,
		Nlinks:  2,
		Size:    2 * DirentSize,
	}
	root.Addrs[0] = rootDataBlock
	if err := fsys.putInode(root); err != nil {
		return err
	}
	if err := fsys.inodeBitmap().set(int(RootInumber)); err != nil {
		return err
	}
	if err := fsys.dataBitmap().set(0); err != nil {
		return err
	}

	dirSlice, err := fsys.img.Slice(rootDataBlock, 1)
	if err != nil {
		return err
	}
	for i := range dirSlice {
		dirSlice[i] = 0
	}
	writer := bytewriter.New(dirSlice)
	binary.Write(writer, byteOrder, newRawDirent(RootInumber, "."))
	binary.Write(writer, byteOrder, newRawDirent(RootInumber, ".."))

	fsys.fds = [MaxOpenFiles]fileDescriptor{}
	return nil
}

// FormatPreservingUsers formats the image and then writes the current user
// table back into the fresh file system, so /etc/passwd survives the wipe
// even though every other file is gone.
func (fsys *FileSystem) FormatPreservingUsers() error {
	if err := fsys.Format(); err != nil {
		return err
	}
	return fsys.SaveUsers()
}
