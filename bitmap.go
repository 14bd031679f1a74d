package minifs

import (
	"fmt"

	"github.com/boljen/go-bitmap"
)

// bitmapRegion addresses one of the two allocation bitmaps. Bits are LSB-first
// within each byte, so bit `i` lives at byte `i/8`, bit position `i%8` — the
// ordering go-bitmap uses natively.
type bitmapRegion struct {
	img        *Image
	startBlock PhysicalBlock
	blocks     uint
	totalBits  int
}

func (fsys *FileSystem) inodeBitmap() bitmapRegion {
	return bitmapRegion{
		img:        fsys.img,
		startBlock: InodeBitmapStart,
		blocks:     InodeBitmapBlocks,
		totalBits:  NumInodes,
	}
}

func (fsys *FileSystem) dataBitmap() bitmapRegion {
	return bitmapRegion{
		img:        fsys.img,
		startBlock: DataBitmapStart,
		blocks:     DataBitmapBlocks,
		totalBits:  NumDataBlocks,
	}
}

// bits returns the live bitmap storage. Mutations through the returned value
// are mutations of the image.
func (region bitmapRegion) bits() (bitmap.Bitmap, error) {
	raw, err := region.img.Slice(region.startBlock, region.blocks)
	if err != nil {
		return nil, err
	}
	return bitmap.Bitmap(raw), nil
}

func (region bitmapRegion) checkIndex(index int) error {
	if index < 0 || index >= region.totalBits {
		return ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("bit %d not in range [0, %d)", index, region.totalBits),
		)
	}
	return nil
}

func (region bitmapRegion) set(index int) error {
	if err := region.checkIndex(index); err != nil {
		return err
	}
	bits, err := region.bits()
	if err != nil {
		return err
	}
	bits.Set(index, true)
	return nil
}

func (region bitmapRegion) clear(index int) error {
	if err := region.checkIndex(index); err != nil {
		return err
	}
	bits, err := region.bits()
	if err != nil {
		return err
	}
	bits.Set(index, false)
	return nil
}

func (region bitmapRegion) test(index int) (bool, error) {
	if err := region.checkIndex(index); err != nil {
		return false, err
	}
	bits, err := region.bits()
	if err != nil {
		return false, err
	}
	return bits.Get(index), nil
}

// findFree returns the lowest free bit index that is at least `minIndex`, or
// -1 if every eligible bit is set. Any byte equal to 0xFF is skipped whole.
// Because it always returns the lowest free bit, consecutive calls (with the
// winner set in between) hand out strictly increasing indices until something
// is cleared.
func (region bitmapRegion) findFree(minIndex int) (int, error) {
	raw, err := region.img.Slice(region.startBlock, region.blocks)
	if err != nil {
		return -1, err
	}

	for byteIndex, b := range raw {
		if b == 0xFF {
			continue
		}
		for bitOffset := 0; bitOffset < 8; bitOffset++ {
			if b&(1<<bitOffset) != 0 {
				continue
			}
			index := byteIndex*8 + bitOffset
			if index >= minIndex && index < region.totalBits {
				return index, nil
			}
		}
	}
	return -1, nil
}
