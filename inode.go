package minifs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// Inode is the decoded form of a [RawInode], tagged with its own number.
type Inode struct {
	Inumber Inumber
	Type    int16
	Nlinks  int16
	Size    int
	Addrs   [NumDirectBlocks]PhysicalBlock
}

func (inode *Inode) IsDir() bool {
	return inode.Type == TypeDir
}

func (inode *Inode) IsFile() bool {
	return inode.Type == TypeFile
}

func rawInodeToInode(inumber Inumber, raw RawInode) Inode {
	return Inode{
		Inumber: inumber,
		Type:    raw.Type,
		Nlinks:  raw.Nlinks,
		Size:    int(raw.Size),
		Addrs:   raw.Addrs,
	}
}

func inodeToRawInode(inode Inode) RawInode {
	return RawInode{
		Type:   inode.Type,
		Nlinks: inode.Nlinks,
		Size:   int32(inode.Size),
		Addrs:  inode.Addrs,
	}
}

// inodeSlot returns the byte range of inode `n` within the inode table.
func (fsys *FileSystem) inodeSlot(n Inumber) ([]byte, error) {
	if n < 0 || int(n) >= NumInodes {
		return nil, ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", n, NumInodes),
		)
	}

	block := PhysicalBlock(InodeStart + (int(n)*InodeSize)/BlockSize)
	offset := (int(n) * InodeSize) % BlockSize

	raw, err := fsys.img.Slice(block, 1)
	if err != nil {
		return nil, err
	}
	return raw[offset : offset+InodeSize], nil
}

// readInode deserializes inode `n` regardless of its allocation state.
func (fsys *FileSystem) readInode(n Inumber) (RawInode, error) {
	slot, err := fsys.inodeSlot(n)
	if err != nil {
		return RawInode{}, err
	}

	var raw RawInode
	if err := binary.Read(bytes.NewReader(slot), byteOrder, &raw); err != nil {
		return RawInode{}, ErrIOFailed.Wrap(err)
	}
	return raw, nil
}

// writeInode serializes `raw` into inode slot `n`.
func (fsys *FileSystem) writeInode(n Inumber, raw RawInode) error {
	slot, err := fsys.inodeSlot(n)
	if err != nil {
		return err
	}

	writer := bytewriter.New(slot)
	if err := binary.Write(writer, byteOrder, &raw); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

// getInode returns a copy of inode `n`. Inode 0 is reserved and free inodes
// are not addressable, so both fail.
func (fsys *FileSystem) getInode(n Inumber) (Inode, error) {
	if n <= 0 || int(n) >= NumInodes {
		return Inode{}, ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range (0, %d)", n, NumInodes),
		)
	}

	raw, err := fsys.readInode(n)
	if err != nil {
		return Inode{}, err
	}
	if raw.Type == TypeFree {
		return Inode{}, ErrNotFound.WithMessage(
			fmt.Sprintf("inode %d is not allocated", n),
		)
	}
	return rawInodeToInode(n, raw), nil
}

// putInode writes `inode` back to its slot.
func (fsys *FileSystem) putInode(inode Inode) error {
	return fsys.writeInode(inode.Inumber, inodeToRawInode(inode))
}

// Stat returns the inode record behind `n`. It fails for the reserved inode 0,
// out-of-range numbers, and unallocated inodes.
func (fsys *FileSystem) Stat(n Inumber) (Inode, error) {
	return fsys.getInode(n)
}

// ialloc claims the lowest free inode number, zeroes its record, stamps it
// with `inodeType`, and returns it. The search floor of 1 keeps the reserved
// inode 0 out of circulation.
func (fsys *FileSystem) ialloc(inodeType int16) (Inumber, error) {
	region := fsys.inodeBitmap()

	index, err := region.findFree(1)
	if err != nil {
		return InvalidInumber, err
	}
	if index == -1 {
		return InvalidInumber, ErrNoSpaceOnDevice.WithMessage("no free inodes")
	}
	if err := region.set(index); err != nil {
		return InvalidInumber, err
	}

	inum := Inumber(index)
	if err := fsys.writeInode(inum, RawInode{Type: inodeType}); err != nil {
		return InvalidInumber, err
	}
	return inum, nil
}

// ifree releases inode `n`: its type goes back to free and its bitmap bit is
// cleared. Nothing else in the record is touched.
func (fsys *FileSystem) ifree(n Inumber) error {
	if n <= 0 || int(n) >= NumInodes {
		return ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range (0, %d)", n, NumInodes),
		)
	}

	raw, err := fsys.readInode(n)
	if err != nil {
		return err
	}
	raw.Type = TypeFree
	if err := fsys.writeInode(n, raw); err != nil {
		return err
	}
	return fsys.inodeBitmap().clear(int(n))
}

// balloc claims the lowest free data block, zero-fills it, and returns its
// absolute block number. Zeroing at allocation time (rather than at free time)
// means a freshly grown file reads back as zeros without bfree having to do
// any I/O.
func (fsys *FileSystem) balloc() (PhysicalBlock, error) {
	region := fsys.dataBitmap()

	index, err := region.findFree(0)
	if err != nil {
		return 0, err
	}
	if index == -1 {
		return 0, ErrNoSpaceOnDevice.WithMessage("no free data blocks")
	}
	if err := region.set(index); err != nil {
		return 0, err
	}

	absolute := PhysicalBlock(DataStart + index)
	zeros := make([]byte, BlockSize)
	if err := fsys.img.WriteBlock(absolute, zeros); err != nil {
		region.clear(index)
		return 0, err
	}
	return absolute, nil
}

// bfree releases the data block at absolute block number `absolute`. Block
// numbers outside the data region are rejected.
func (fsys *FileSystem) bfree(absolute PhysicalBlock) error {
	if absolute < DataStart || absolute >= BlockCount {
		return ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"block %d not in data region [%d, %d)",
				absolute,
				DataStart,
				BlockCount,
			),
		)
	}
	return fsys.dataBitmap().clear(int(absolute - DataStart))
}
