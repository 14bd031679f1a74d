package main

import (
	"fmt"
	"io"
	"log"
	"os"
	posixpath "path"
	"strconv"

	"github.com/dargueta/minifs"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Manage minifs disk image files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Value:   "minifs.img",
				Usage:   "path of the image file to operate on",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "print operation diagnostics to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "Create a freshly formatted image",
				Action: formatImage,
			},
			{
				Name:   "check",
				Usage:  "Verify the structural invariants of an image",
				Action: checkImage,
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "[PATH]",
				Action:    listDirectory,
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "PATH",
				Action:    makeDirectory,
			},
			{
				Name:      "rmdir",
				Usage:     "Remove an empty directory",
				ArgsUsage: "PATH",
				Action:    removeDirectory,
			},
			{
				Name:      "rm",
				Usage:     "Remove a file",
				ArgsUsage: "PATH",
				Action:    removeFile,
			},
			{
				Name:      "read",
				Usage:     "Copy a file's contents to standard output",
				ArgsUsage: "PATH",
				Action:    readFile,
			},
			{
				Name:      "write",
				Usage:     "Create a file from standard input",
				ArgsUsage: "PATH",
				Action:    writeFile,
			},
			{
				Name:   "users",
				Usage:  "List the users stored in the image",
				Action: listUsers,
			},
			{
				Name:      "useradd",
				Usage:     "Add a user to the image",
				ArgsUsage: "NAME PASSWORD UID GID",
				Action:    addUser,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// openImage loads the image named by the --image flag into a fresh instance.
func openImage(context *cli.Context) (*minifs.FileSystem, error) {
	fsys := minifs.New()
	if context.Bool("verbose") {
		fsys.SetLogger(log.New(os.Stderr, "minifs: ", 0))
	}
	if err := fsys.Load(context.String("image")); err != nil {
		return nil, err
	}
	return fsys, nil
}

// splitPath resolves the directory part of `path` and returns its inode
// number along with the final name component.
func splitPath(fsys *minifs.FileSystem, path string) (minifs.Inumber, string, error) {
	parentPath, baseName := posixpath.Split(path)
	parentInum, err := fsys.Resolve(parentPath, minifs.RootInumber)
	if err != nil {
		return minifs.InvalidInumber, "", err
	}
	return parentInum, baseName, nil
}

func formatImage(context *cli.Context) error {
	fsys := minifs.New()
	if context.Bool("verbose") {
		fsys.SetLogger(log.New(os.Stderr, "minifs: ", 0))
	}
	if err := fsys.Format(); err != nil {
		return err
	}
	if err := fsys.SaveUsers(); err != nil {
		return err
	}
	return fsys.Save(context.String("image"))
}

func checkImage(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	return fsys.CheckConsistency()
}

func listDirectory(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}

	path := context.Args().First()
	if path == "" {
		path = "/"
	}
	dirInum, err := fsys.Resolve(path, minifs.RootInumber)
	if err != nil {
		return err
	}

	entries, err := fsys.List(dirInum)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%-30s %d\n", entry.Name, entry.Inumber)
	}
	return nil
}

func makeDirectory(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	parentInum, baseName, err := splitPath(fsys, context.Args().First())
	if err != nil {
		return err
	}
	if _, err := fsys.Mkdir(parentInum, baseName); err != nil {
		return err
	}
	return fsys.Save(context.String("image"))
}

func removeDirectory(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	parentInum, baseName, err := splitPath(fsys, context.Args().First())
	if err != nil {
		return err
	}
	if err := fsys.Rmdir(parentInum, baseName); err != nil {
		return err
	}
	return fsys.Save(context.String("image"))
}

func removeFile(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	parentInum, baseName, err := splitPath(fsys, context.Args().First())
	if err != nil {
		return err
	}
	if err := fsys.Unlink(parentInum, baseName); err != nil {
		return err
	}
	return fsys.Save(context.String("image"))
}

func readFile(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	parentInum, baseName, err := splitPath(fsys, context.Args().First())
	if err != nil {
		return err
	}

	fd, err := fsys.Open(parentInum, baseName, minifs.O_RDONLY)
	if err != nil {
		return err
	}
	defer fsys.Close(fd)

	buffer := make([]byte, minifs.MaxFileSize)
	produced, err := fsys.Read(fd, buffer)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buffer[:produced])
	return err
}

func writeFile(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	parentInum, baseName, err := splitPath(fsys, context.Args().First())
	if err != nil {
		return err
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	fd, err := fsys.Open(parentInum, baseName, minifs.O_WRONLY|minifs.O_CREATE)
	if err != nil {
		return err
	}
	written, err := fsys.Write(fd, data)
	fsys.Close(fd)
	if err != nil {
		return err
	}
	if written < len(data) {
		return fmt.Errorf("short write: only %d of %d bytes fit", written, len(data))
	}
	return fsys.Save(context.String("image"))
}

func listUsers(context *cli.Context) error {
	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	for _, user := range fsys.Users().Users() {
		fmt.Printf("%-15s uid=%-6d gid=%d\n", user.Username, user.UID, user.GID)
	}
	return nil
}

func addUser(context *cli.Context) error {
	if context.NArg() != 4 {
		return fmt.Errorf("useradd needs exactly NAME PASSWORD UID GID")
	}
	uid, err := strconv.Atoi(context.Args().Get(2))
	if err != nil {
		return fmt.Errorf("bad uid: %w", err)
	}
	gid, err := strconv.Atoi(context.Args().Get(3))
	if err != nil {
		return fmt.Errorf("bad gid: %w", err)
	}

	fsys, err := openImage(context)
	if err != nil {
		return err
	}
	err = fsys.Users().AddUser(
		context.Args().Get(0),
		context.Args().Get(1),
		uid,
		gid,
	)
	if err != nil {
		return err
	}
	if err := fsys.SaveUsers(); err != nil {
		return err
	}
	return fsys.Save(context.String("image"))
}
