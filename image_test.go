package minifs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/minifs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage__ReadWriteBlock(t *testing.T) {
	img := minifs.NewImage(minifs.BlockSize, minifs.BlockCount)

	payload := make([]byte, minifs.BlockSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, img.WriteBlock(17, payload))

	buffer := make([]byte, minifs.BlockSize)
	require.NoError(t, img.ReadBlock(17, buffer))
	assert.Equal(t, payload, buffer)
}

func TestImage__OutOfRangeReadZeroesTheBuffer(t *testing.T) {
	img := minifs.NewImage(minifs.BlockSize, minifs.BlockCount)

	buffer := make([]byte, minifs.BlockSize)
	for i := range buffer {
		buffer[i] = 0xFF
	}

	err := img.ReadBlock(minifs.BlockCount, buffer)
	assert.ErrorIs(t, err, minifs.ErrArgumentOutOfRange)
	assert.Equal(t, make([]byte, minifs.BlockSize), buffer,
		"an out-of-range read must hand back zeros, never stale data")

	err = img.ReadBlock(-1, buffer)
	assert.ErrorIs(t, err, minifs.ErrArgumentOutOfRange)
}

func TestImage__OutOfRangeWriteIsIgnored(t *testing.T) {
	img := minifs.NewImage(minifs.BlockSize, minifs.BlockCount)

	before, err := img.Slice(0, minifs.BlockCount)
	require.NoError(t, err)
	snapshot := append([]byte(nil), before...)

	payload := make([]byte, minifs.BlockSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	err = img.WriteBlock(minifs.BlockCount, payload)
	assert.ErrorIs(t, err, minifs.ErrArgumentOutOfRange)

	after, err := img.Slice(0, minifs.BlockCount)
	require.NoError(t, err)
	assert.Equal(t, snapshot, after, "a rejected write must change nothing")
}

func TestImage__WrongBufferSize(t *testing.T) {
	img := minifs.NewImage(minifs.BlockSize, minifs.BlockCount)

	err := img.ReadBlock(0, make([]byte, minifs.BlockSize-1))
	assert.ErrorIs(t, err, minifs.ErrInvalidArgument)

	err = img.WriteBlock(0, make([]byte, minifs.BlockSize+1))
	assert.ErrorIs(t, err, minifs.ErrInvalidArgument)
}

func TestImage__SliceIsLive(t *testing.T) {
	img := minifs.NewImage(minifs.BlockSize, minifs.BlockCount)

	slice, err := img.Slice(3, 1)
	require.NoError(t, err)
	slice[0] = 0x7F

	buffer := make([]byte, minifs.BlockSize)
	require.NoError(t, img.ReadBlock(3, buffer))
	assert.EqualValues(t, 0x7F, buffer[0],
		"slices view the image storage directly")

	_, err = img.Slice(minifs.BlockCount-1, 2)
	assert.ErrorIs(t, err, minifs.ErrArgumentOutOfRange)
}

func TestReadImageFile__SizeValidation(t *testing.T) {
	dir := t.TempDir()

	exact := filepath.Join(dir, "exact.img")
	require.NoError(t, os.WriteFile(exact, make([]byte, 4096), 0o644))
	data, err := minifs.ReadImageFile(exact, 4096)
	require.NoError(t, err)
	assert.Len(t, data, 4096)

	_, err = minifs.ReadImageFile(exact, 8192)
	assert.ErrorIs(t, err, minifs.ErrFileSystemCorrupted)

	_, err = minifs.ReadImageFile(filepath.Join(dir, "missing.img"), 4096)
	assert.ErrorIs(t, err, minifs.ErrIOFailed)
}

func TestImage__SaveAndStream(t *testing.T) {
	img := minifs.NewImage(64, 4)

	slice, err := img.Slice(0, 4)
	require.NoError(t, err)
	for i := range slice {
		slice[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), "tiny.img")
	require.NoError(t, img.Save(path))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, slice, onDisk, "the saved file is the raw image bytes")
}
