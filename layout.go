package minifs

import "encoding/binary"

// PhysicalBlock is an absolute block number within the image.
type PhysicalBlock int32

// Inumber is an index into the inode table. Inode 0 is reserved and never
// allocated; inode 1 is the root directory.
type Inumber int32

// RootInumber is the inode number of the root directory. It exists from the
// moment the image is formatted and can never be removed.
const RootInumber = Inumber(1)

// InvalidInumber is returned by lookups that fail to find an inode.
const InvalidInumber = Inumber(-1)

// Geometry of the default image. All block-level structures are derived from
// these; the superblock written at format time must agree with them exactly.
const (
	// BlockSize is the size of a single block, in bytes.
	BlockSize = 512
	// BlockCount is the total number of blocks in the image.
	BlockCount = 1024

	// InodeSize is the on-disk stride of one inode record, in bytes.
	InodeSize = 64
	// InodeBlocks is the number of blocks occupied by the inode table.
	InodeBlocks = 16
	// NumInodes is the total number of inode slots, reserved inode 0 included.
	NumInodes = InodeBlocks * (BlockSize / InodeSize)

	// SuperblockStart is the block holding the superblock.
	SuperblockStart = 0
	// InodeBitmapStart is the first block of the inode allocation bitmap.
	InodeBitmapStart = SuperblockStart + 1
	// InodeBitmapBlocks is the length of the inode bitmap, in blocks.
	InodeBitmapBlocks = 1
	// DataBitmapStart is the first block of the data allocation bitmap.
	DataBitmapStart = InodeBitmapStart + InodeBitmapBlocks
	// DataBitmapBlocks is the length of the data bitmap, in blocks.
	DataBitmapBlocks = 1
	// InodeStart is the first block of the inode table.
	InodeStart = DataBitmapStart + DataBitmapBlocks
	// DataStart is the first block of the data region.
	DataStart = InodeStart + InodeBlocks
	// NumDataBlocks is the number of blocks in the data region.
	NumDataBlocks = BlockCount - DataStart

	// NumDirectBlocks is the number of direct block pointers in an inode.
	// There is no indirect addressing, so it also bounds the file size.
	NumDirectBlocks = 8
	// MaxFileSize is the largest file the inode layout can describe, in bytes.
	MaxFileSize = NumDirectBlocks * BlockSize

	// DirNameSize is the size of a directory entry's name field, including
	// the terminating null byte.
	DirNameSize = 28
	// DirentSize is the on-disk size of one directory entry.
	DirentSize = 32
	// DirentsPerBlock bounds how many entries a directory can hold, since a
	// directory's entries all live in its first data block.
	DirentsPerBlock = BlockSize / DirentSize

	// MaxOpenFiles is the capacity of a file system's descriptor table.
	MaxOpenFiles = 16
)

// Inode types.
const (
	TypeFree = int16(0)
	TypeFile = int16(1)
	TypeDir  = int16(2)
)

// byteOrder is the byte order of every integer field in the image. Fixing it
// rather than using the host order keeps images interchangeable between
// machines.
var byteOrder = binary.LittleEndian

// RawSuperblock is the on-disk superblock record, written verbatim at block 0.
// Every field is redundant with the compile-time layout; a loaded image whose
// superblock disagrees with the layout is rejected as corrupted.
type RawSuperblock struct {
	TotalBlocks      int32
	NumInodes        int32
	NumDataBlocks    int32
	InodeStart       int32
	DataStart        int32
	InodeBitmapStart int32
	DataBitmapStart  int32
}

// RawInode is the on-disk inode record. The trailing padding brings the
// serialized size up to the [InodeSize] stride.
type RawInode struct {
	Type   int16
	Nlinks int16
	Size   int32
	Addrs  [NumDirectBlocks]PhysicalBlock
	Unused [24]byte
}

// RawDirent is the on-disk directory entry: an inode number paired with a
// null-terminated name. An entry with inode number 0 is empty.
type RawDirent struct {
	Inumber Inumber
	Name    [DirNameSize]byte
}
