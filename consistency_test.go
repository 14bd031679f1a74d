package minifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConsistency__CleanAfterOperations(t *testing.T) {
	fsys := newFormatted(t)

	dirInum, err := fsys.Mkdir(RootInumber, "a")
	require.NoError(t, err)
	_, err = fsys.Create(dirInum, "f")
	require.NoError(t, err)

	fd, err := fsys.Open(dirInum, "f", O_RDWR)
	require.NoError(t, err)
	_, err = fsys.Write(fd, make([]byte, 3*BlockSize))
	require.NoError(t, err)

	assert.NoError(t, fsys.CheckConsistency())
}

func TestCheckConsistency__DetectsBitmapDrift(t *testing.T) {
	fsys := newFormatted(t)

	// An inode bit with no record behind it.
	require.NoError(t, fsys.inodeBitmap().set(9))
	assert.ErrorIs(t, fsys.CheckConsistency(), ErrFileSystemCorrupted)
}

func TestCheckConsistency__DetectsSharedBlock(t *testing.T) {
	fsys := newFormatted(t)

	firstInum, err := fsys.Create(RootInumber, "one")
	require.NoError(t, err)
	secondInum, err := fsys.Create(RootInumber, "two")
	require.NoError(t, err)

	// Point the second file at the first file's block.
	first, err := fsys.getInode(firstInum)
	require.NoError(t, err)
	second, err := fsys.getInode(secondInum)
	require.NoError(t, err)

	stolen := second.Addrs[0]
	second.Addrs[0] = first.Addrs[0]
	require.NoError(t, fsys.putInode(second))
	require.NoError(t, fsys.bfree(stolen))

	assert.ErrorIs(t, fsys.CheckConsistency(), ErrFileSystemCorrupted)
}

func TestCheckConsistency__DetectsBrokenDirectory(t *testing.T) {
	fsys := newFormatted(t)

	dirInum, err := fsys.Mkdir(RootInumber, "d")
	require.NoError(t, err)

	// Break the directory's "." entry.
	dir, err := fsys.getInode(dirInum)
	require.NoError(t, err)
	require.NoError(t, fsys.writeDirent(dir, 0, newRawDirent(RootInumber, ".")))

	assert.ErrorIs(t, fsys.CheckConsistency(), ErrFileSystemCorrupted)
}

func TestCheckConsistency__DetectsLinkCountDrift(t *testing.T) {
	fsys := newFormatted(t)

	root, err := fsys.getInode(RootInumber)
	require.NoError(t, err)
	root.Nlinks = 7
	require.NoError(t, fsys.putInode(root))

	assert.ErrorIs(t, fsys.CheckConsistency(), ErrFileSystemCorrupted)
}
