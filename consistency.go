package minifs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// CheckConsistency audits the whole image against the structural invariants:
// bitmap/record agreement, single ownership of data blocks, well-formed
// directories, unique names, an untouched superblock, and a sane descriptor
// table. Every violation found is reported, not just the first, so the result
// of a broken image is a full damage report.
func (fsys *FileSystem) CheckConsistency() error {
	var result *multierror.Error

	if sb, err := fsys.readSuperblock(); err != nil {
		result = multierror.Append(result, err)
	} else if err := validateSuperblock(sb); err != nil {
		result = multierror.Append(result, err)
	}

	// Walk the inode table once, collecting block ownership as we go.
	blockOwners := make(map[PhysicalBlock]Inumber)
	inodeBits := fsys.inodeBitmap()

	for i := 0; i < NumInodes; i++ {
		inum := Inumber(i)
		raw, err := fsys.readInode(inum)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		allocated, err := inodeBits.test(i)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if allocated != (raw.Type != TypeFree) {
			result = multierror.Append(result, ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"inode %d: bitmap bit %t disagrees with type %d",
					inum,
					allocated,
					raw.Type,
				),
			))
		}
		if raw.Type == TypeFree {
			continue
		}

		for _, addr := range raw.Addrs {
			if addr == 0 {
				continue
			}
			if owner, claimed := blockOwners[addr]; claimed {
				result = multierror.Append(result, ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf(
						"block %d owned by both inode %d and inode %d",
						addr,
						owner,
						inum,
					),
				))
				continue
			}
			blockOwners[addr] = inum
		}

		if raw.Type == TypeDir {
			fsys.checkDirectory(rawInodeToInode(inum, raw), &result)
		}
	}

	// Every data-region bit must agree with the ownership map.
	dataBits := fsys.dataBitmap()
	for j := 0; j < NumDataBlocks; j++ {
		set, err := dataBits.test(j)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		_, owned := blockOwners[PhysicalBlock(DataStart+j)]
		if set != owned {
			result = multierror.Append(result, ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"data block %d: bitmap bit %t but ownership %t",
					DataStart+j,
					set,
					owned,
				),
			))
		}
	}

	// Live descriptors must point at live regular files.
	for fd, descriptor := range fsys.fds {
		if !descriptor.inUse {
			continue
		}
		inode, err := fsys.getInode(descriptor.inum)
		if err != nil {
			result = multierror.Append(result, ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("descriptor %d references dead inode %d", fd, descriptor.inum),
			))
			continue
		}
		if !inode.IsFile() {
			result = multierror.Append(result, ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"descriptor %d references inode %d, which is not a regular file",
					fd,
					descriptor.inum,
				),
			))
		}
	}

	return result.ErrorOrNil()
}

// checkDirectory verifies one directory's shape: sized in whole entries, "."
// pointing home, ".." present (the root's pointing at itself), unique names,
// and a link count of 2 plus one per child directory.
func (fsys *FileSystem) checkDirectory(dir Inode, result **multierror.Error) {
	if dir.Size%DirentSize != 0 || dir.Size < 2*DirentSize {
		*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory %d has impossible size %d", dir.Inumber, dir.Size),
		))
		return
	}

	entries, err := fsys.readDirents(dir)
	if err != nil {
		*result = multierror.Append(*result, err)
		return
	}

	seen := make(map[string]bool, len(entries))
	var dot, dotdot *RawDirent
	childDirs := int16(0)

	for i := range entries {
		name := entries[i].name()
		if seen[name] {
			*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("directory %d has duplicate entry %q", dir.Inumber, name),
			))
		}
		seen[name] = true

		switch name {
		case ".":
			dot = &entries[i]
		case "..":
			dotdot = &entries[i]
		default:
			child, err := fsys.getInode(entries[i].Inumber)
			if err != nil {
				*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf(
						"directory %d entry %q references dead inode %d",
						dir.Inumber,
						name,
						entries[i].Inumber,
					),
				))
				continue
			}
			if child.IsDir() {
				childDirs++
			}
		}
	}

	if dot == nil || dot.Inumber != dir.Inumber {
		*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory %d: \".\" missing or astray", dir.Inumber),
		))
	}
	if dotdot == nil {
		*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory %d: \"..\" missing", dir.Inumber),
		))
	} else if dir.Inumber == RootInumber && dotdot.Inumber != RootInumber {
		*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("root \"..\" points at %d instead of the root", dotdot.Inumber),
		))
	}

	if dir.Nlinks != 2+childDirs {
		*result = multierror.Append(*result, ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"directory %d has %d links, expected %d for %d child directories",
				dir.Inumber,
				dir.Nlinks,
				2+childDirs,
				childDirs,
			),
		))
	}
}
