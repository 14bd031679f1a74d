package minifs

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
	"github.com/xaionaro-go/bytesextra"
)

// Image is the fixed-size backing store of a file system: a contiguous run of
// [BlockCount] blocks of [BlockSize] bytes each. All on-disk structures live
// inside it, and all access goes through whole-block transfers or through
// slices handed out by [Image.Slice].
type Image struct {
	data          []byte
	bytesPerBlock uint
	totalBlocks   uint
}

// NewImage returns a zero-filled image with the given geometry.
func NewImage(bytesPerBlock, totalBlocks uint) *Image {
	return &Image{
		data:          make([]byte, bytesPerBlock*totalBlocks),
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// BytesPerBlock returns the size of a single block, in bytes.
func (img *Image) BytesPerBlock() uint {
	return img.bytesPerBlock
}

// TotalBlocks returns the size of the image, in blocks.
func (img *Image) TotalBlocks() uint {
	return img.totalBlocks
}

// Size gives the size of the image, in bytes (not blocks!).
func (img *Image) Size() int64 {
	return int64(img.bytesPerBlock) * int64(img.totalBlocks)
}

// checkBlockRange verifies that blocks [start, start+count) exist.
func (img *Image) checkBlockRange(start PhysicalBlock, count uint) error {
	if start < 0 || uint(start) >= img.totalBlocks {
		return ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("block %d not in range [0, %d)", start, img.totalBlocks),
		)
	}
	if uint(start)+count > img.totalBlocks {
		return ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d blocks starting at block %d; requested range"+
					" not in [0, %d)",
				count,
				start,
				img.totalBlocks,
			),
		)
	}
	return nil
}

// ReadBlock copies block `n` into `buffer`, which must be exactly one block
// long. An out-of-range block number fails the call and zeroes the buffer, so
// a corrupted block pointer can never read beyond the image.
func (img *Image) ReadBlock(n PhysicalBlock, buffer []byte) error {
	if uint(len(buffer)) != img.bytesPerBlock {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block buffer must be %d bytes, got %d",
				img.bytesPerBlock,
				len(buffer),
			),
		)
	}
	if err := img.checkBlockRange(n, 1); err != nil {
		for i := range buffer {
			buffer[i] = 0
		}
		return err
	}

	offset := uint(n) * img.bytesPerBlock
	copy(buffer, img.data[offset:offset+img.bytesPerBlock])
	return nil
}

// WriteBlock copies `buffer`, which must be exactly one block long, into
// block `n`. An out-of-range block number fails the call and leaves the image
// untouched.
func (img *Image) WriteBlock(n PhysicalBlock, buffer []byte) error {
	if uint(len(buffer)) != img.bytesPerBlock {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block buffer must be %d bytes, got %d",
				img.bytesPerBlock,
				len(buffer),
			),
		)
	}
	if err := img.checkBlockRange(n, 1); err != nil {
		return err
	}

	offset := uint(n) * img.bytesPerBlock
	copy(img.data[offset:offset+img.bytesPerBlock], buffer)
	return nil
}

// Slice returns a view of the image's storage beginning at block `start` and
// continuing for `count` blocks. Modifications to the returned slice are
// modifications to the image.
func (img *Image) Slice(start PhysicalBlock, count uint) ([]byte, error) {
	if err := img.checkBlockRange(start, count); err != nil {
		return nil, err
	}

	startOffset := uint(start) * img.bytesPerBlock
	endOffset := startOffset + count*img.bytesPerBlock
	return img.data[startOffset:endOffset], nil
}

// Stream wraps the raw image bytes in an [io.ReadWriteSeeker]. Writes through
// the stream bypass the block API, so it's meant for whole-image transfers
// like [Image.Save].
func (img *Image) Stream() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(img.data)
}

// Save writes the whole image to a host file. If the file already exists, the
// previous contents are first preserved as `<path>.bak`. The new copy is
// written to a temporary file and moved into place, so a crash mid-save never
// leaves a truncated image behind.
func (img *Image) Save(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return ErrIOFailed.Wrap(err)
		}
	}

	pending, err := renameio.TempFile("", path)
	if err != nil {
		return ErrIOFailed.Wrap(err)
	}
	defer pending.Cleanup()

	if _, err := io.Copy(pending, img.Stream()); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return ErrIOFailed.Wrap(err)
	}
	return nil
}

// ReadImageFile reads a host file produced by [Image.Save] and returns its
// contents. A file that can't be opened or read fails with [ErrIOFailed]; a
// file whose size is not exactly `size` bytes fails with
// [ErrFileSystemCorrupted]. Validating the contents is the caller's job.
func ReadImageFile(path string, size int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrIOFailed.Wrap(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, ErrIOFailed.Wrap(err)
	}
	if stat.Size() != size {
		return nil, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"image file must be exactly %d bytes, got %d",
				size,
				stat.Size(),
			),
		)
	}

	buffer := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(buffer)
	if _, err := io.Copy(stream, f); err != nil {
		return nil, ErrIOFailed.Wrap(err)
	}
	return buffer, nil
}

// replaceContents swaps in a new backing array. `data` must be exactly the
// size of the image.
func (img *Image) replaceContents(data []byte) error {
	if int64(len(data)) != img.Size() {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"replacement data must be %d bytes, got %d",
				img.Size(),
				len(data),
			),
		)
	}
	copy(img.data, data)
	return nil
}
