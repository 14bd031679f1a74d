package minifs

import (
	"errors"
	"fmt"
)

// Open opens the file named `name` in directory `parentInum` and returns a
// descriptor for it. `flags` must carry at least one access-mode bit; adding
// [O_CREATE] creates the file first if it doesn't exist. The descriptor is
// the lowest free slot in the table, with its position at byte 0 and only the
// access-mode bits remembered.
func (fsys *FileSystem) Open(parentInum Inumber, name string, flags IOFlags) (int, error) {
	if flags.Accmode() == 0 {
		return -1, ErrInvalidArgument.WithMessage(
			"flags must include at least one of O_RDONLY and O_WRONLY",
		)
	}

	inum, err := fsys.lookupInDir(parentInum, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) || !flags.Create() {
			return -1, err
		}
		inum, err = fsys.Create(parentInum, name)
		if err != nil {
			return -1, err
		}
	}

	target, err := fsys.getInode(inum)
	if err != nil {
		return -1, err
	}
	if !target.IsFile() {
		return -1, ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is not a regular file", name),
		)
	}

	for fd := range fsys.fds {
		if fsys.fds[fd].inUse {
			continue
		}
		fsys.fds[fd] = fileDescriptor{
			inUse:    true,
			inum:     inum,
			mode:     flags.Accmode(),
			position: 0,
		}
		return fd, nil
	}
	return -1, ErrTooManyOpenFiles.WithMessage(
		fmt.Sprintf("all %d descriptors are in use", MaxOpenFiles),
	)
}

// descriptor validates `fd` and returns its slot.
func (fsys *FileSystem) descriptor(fd int) (*fileDescriptor, error) {
	if fd < 0 || fd >= MaxOpenFiles || !fsys.fds[fd].inUse {
		return nil, ErrInvalidFileDescriptor.WithMessage(
			fmt.Sprintf("descriptor %d is not open", fd),
		)
	}
	return &fsys.fds[fd], nil
}

// Close releases descriptor `fd`.
func (fsys *FileSystem) Close(fd int) error {
	if _, err := fsys.descriptor(fd); err != nil {
		return err
	}
	fsys.fds[fd] = fileDescriptor{}
	return nil
}

// Read copies up to len(buffer) bytes of the file behind `fd` into `buffer`
// and returns how many were produced. By default every read starts at byte 0
// of the file, regardless of how much has been read before; see
// [FileSystem.ReadsTrackPosition] for the offset-consuming variant. Reads
// stop at the file size and at the first unallocated block pointer.
func (fsys *FileSystem) Read(fd int, buffer []byte) (int, error) {
	descriptor, err := fsys.descriptor(fd)
	if err != nil {
		return 0, err
	}
	if !descriptor.mode.Read() {
		return 0, ErrNotPermitted.WithMessage(
			fmt.Sprintf("descriptor %d is not open for reading", fd),
		)
	}

	inode, err := fsys.getInode(descriptor.inum)
	if err != nil {
		return 0, err
	}

	start := 0
	if fsys.ReadsTrackPosition {
		start = descriptor.position
	}
	if start >= inode.Size {
		return 0, nil
	}

	count := len(buffer)
	if remaining := inode.Size - start; count > remaining {
		count = remaining
	}

	produced := 0
	blockBuffer := make([]byte, BlockSize)
	for produced < count {
		offset := start + produced
		addr := inode.Addrs[offset/BlockSize]
		if addr == 0 {
			// The file ends at its first hole.
			break
		}
		if err := fsys.img.ReadBlock(addr, blockBuffer); err != nil {
			return produced, err
		}

		blockOffset := offset % BlockSize
		chunk := BlockSize - blockOffset
		if chunk > count-produced {
			chunk = count - produced
		}
		copy(buffer[produced:produced+chunk], blockBuffer[blockOffset:blockOffset+chunk])
		produced += chunk
	}

	if fsys.ReadsTrackPosition {
		descriptor.position += produced
	}
	return produced, nil
}

// Write copies `buffer` into the file behind `fd` at the descriptor's current
// position, allocating data blocks as the file grows. Writes are clamped at
// the last direct block, so at most [MaxFileSize] bytes of any file exist; a
// write that can't make progress returns 0. If the allocator runs dry the
// write is clamped again to the blocks that were actually granted. The
// descriptor position advances by the bytes written and the file size grows
// to cover them.
func (fsys *FileSystem) Write(fd int, buffer []byte) (int, error) {
	descriptor, err := fsys.descriptor(fd)
	if err != nil {
		return 0, err
	}
	if !descriptor.mode.Write() {
		return 0, ErrNotPermitted.WithMessage(
			fmt.Sprintf("descriptor %d is not open for writing", fd),
		)
	}

	inode, err := fsys.getInode(descriptor.inum)
	if err != nil {
		return 0, err
	}

	count := len(buffer)
	if descriptor.position >= MaxFileSize {
		return 0, nil
	}
	if descriptor.position+count > MaxFileSize {
		count = MaxFileSize - descriptor.position
	}
	if count == 0 {
		return 0, nil
	}

	target := descriptor.position + count
	blocksNeeded := (target + BlockSize - 1) / BlockSize

	// Make sure every covered block exists. If the allocator runs out, the
	// write shrinks to what was granted.
	for i := 0; i < blocksNeeded; i++ {
		if inode.Addrs[i] != 0 {
			continue
		}
		block, err := fsys.balloc()
		if err != nil {
			limit := i * BlockSize
			if target > limit {
				target = limit
			}
			break
		}
		inode.Addrs[i] = block
	}

	if target <= descriptor.position {
		// Not even one byte fits in the allocated blocks.
		if err := fsys.putInode(inode); err != nil {
			return 0, err
		}
		return 0, nil
	}
	count = target - descriptor.position

	written := 0
	blockBuffer := make([]byte, BlockSize)
	for written < count {
		offset := descriptor.position + written
		addr := inode.Addrs[offset/BlockSize]

		blockOffset := offset % BlockSize
		chunk := BlockSize - blockOffset
		if chunk > count-written {
			chunk = count - written
		}

		// Read-modify-write so the untouched parts of the block survive.
		if err := fsys.img.ReadBlock(addr, blockBuffer); err != nil {
			return written, err
		}
		copy(blockBuffer[blockOffset:blockOffset+chunk], buffer[written:written+chunk])
		if err := fsys.img.WriteBlock(addr, blockBuffer); err != nil {
			return written, err
		}
		written += chunk
	}

	descriptor.position += written
	if target > inode.Size {
		inode.Size = target
	}
	if err := fsys.putInode(inode); err != nil {
		return written, err
	}
	return written, nil
}
