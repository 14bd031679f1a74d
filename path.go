package minifs

import (
	"fmt"
	"strings"
)

// Resolve walks `path` to an inode number. Absolute paths start at the root;
// relative paths start at `base`. "." keeps the current directory, and ".."
// is resolved through the directory's own ".." entry, so the root's
// self-referencing ".." pins traversal at the top. Empty segments collapse,
// making "a//b" the same path as "a/b".
func (fsys *FileSystem) Resolve(path string, base Inumber) (Inumber, error) {
	original := path

	// Trailing slashes don't change what a path names, but the root path is
	// nothing but one, so it keeps a single slash.
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	if path == "" {
		if strings.HasPrefix(original, "/") {
			return RootInumber, nil
		}
		return fsys.validateResolved(base)
	}
	if path == "/" {
		return RootInumber, nil
	}

	current := base
	if strings.HasPrefix(path, "/") {
		current = RootInumber
	}
	if _, err := fsys.getInode(current); err != nil {
		return InvalidInumber, err
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == "" || segment == "." {
			continue
		}

		next, err := fsys.lookupInDir(current, segment)
		if err != nil {
			return InvalidInumber, err
		}
		current = next
	}

	return fsys.validateResolved(current)
}

// validateResolved confirms the final inode of a walk is allocated.
func (fsys *FileSystem) validateResolved(inum Inumber) (Inumber, error) {
	if _, err := fsys.getInode(inum); err != nil {
		return InvalidInumber, ErrNotFound.WithMessage(
			fmt.Sprintf("resolved inode %d is not allocated", inum),
		)
	}
	return inum, nil
}
