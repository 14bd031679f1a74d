package minifs

// IOFlags is the set of mode bits accepted by [FileSystem.Open].
type IOFlags int

const (
	// O_RDONLY opens a file for reading only.
	O_RDONLY = IOFlags(0x0001)
	// O_WRONLY opens a file for writing only.
	O_WRONLY = IOFlags(0x0002)
	// O_RDWR opens a file for both reading and writing.
	O_RDWR = IOFlags(O_RDONLY | O_WRONLY)
	// O_CREATE creates the file if it doesn't already exist. It's a modifier
	// and carries no access rights of its own.
	O_CREATE = IOFlags(0x0100)
)

// O_ACCMODE masks off everything except the access-mode bits. Descriptors
// remember only these bits; O_CREATE is consumed by Open.
const O_ACCMODE = IOFlags(0x0003)

func (flags IOFlags) Read() bool {
	return flags&O_RDONLY != 0
}

func (flags IOFlags) Write() bool {
	return flags&O_WRONLY != 0
}

func (flags IOFlags) Create() bool {
	return flags&O_CREATE != 0
}

// Accmode returns just the access-mode bits of the flags.
func (flags IOFlags) Accmode() IOFlags {
	return flags & O_ACCMODE
}
