// Command ezfs builds and inspects ezfs volume images on the host.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/ezos/bcache"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/ezfs"
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/user"
	"github.com/mit-pdos/ezos/user/progs"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var imageFlag = &cli.StringFlag{
	Name:     "image",
	Aliases:  []string{"i"},
	Usage:    "path to the volume image",
	Required: true,
}

func app() *cli.App {
	return &cli.App{
		Name:  "ezfs",
		Usage: "build and inspect ezfs volume images",
		Flags: []cli.Flag{imageFlag},
		Commands: []*cli.Command{{
			Name:  "mkfs",
			Usage: "format a new image",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "blocks",
					Usage: "total blocks in the image",
					Value: 8192,
				},
				&cli.Uint64Flag{
					Name:  "inode-bitmap-blocks",
					Usage: "blocks of inode bitmap",
					Value: 1,
				},
				&cli.BoolFlag{
					Name:  "programs",
					Usage: "also install the built-in user programs",
				},
			},
			Action: func(ctx *cli.Context) error {
				d, err := disk.NewFileDisk(ctx.String(imageFlag.Name), ctx.Uint64("blocks"))
				if err != nil {
					return err
				}
				defer d.Close()
				fs, err := mkfs(d, uint32(ctx.Uint64("blocks")), uint32(ctx.Uint64("inode-bitmap-blocks")))
				if err != nil {
					return err
				}
				if ctx.Bool("programs") {
					for _, p := range progs.All() {
						if err := put(fs, p.Name, user.Image(p)); err != nil {
							return err
						}
					}
				}
				fs.Sync()
				d.Barrier()
				return nil
			},
		}, {
			Name:    "ls",
			Aliases: []string{"list"},
			Usage:   "list the root directory",
			Action: withVolume(func(fs *ezfs.FileSystem, ctx *cli.Context) error {
				return ls(fs, os.Stdout)
			}),
		}, {
			Name:      "put",
			Aliases:   []string{"add"},
			Usage:     "copy host files into the root directory",
			ArgsUsage: "FILE...",
			Action: withVolume(func(fs *ezfs.FileSystem, ctx *cli.Context) error {
				for _, path := range ctx.Args().Slice() {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("reading %s: %w", path, err)
					}
					if err := put(fs, filepath.Base(path), data); err != nil {
						return err
					}
				}
				return nil
			}),
		}, {
			Name:      "cat",
			Usage:     "print a file from the image",
			ArgsUsage: "NAME",
			Action: withVolume(func(fs *ezfs.FileSystem, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return fmt.Errorf("cat: expected one file name, got %d", ctx.NArg())
				}
				return cat(fs, ctx.Args().First(), os.Stdout)
			}),
		}, {
			Name:  "stat",
			Usage: "print usage of the image",
			Action: withVolume(func(fs *ezfs.FileSystem, ctx *cli.Context) error {
				st := fs.Stat()
				_, err := fmt.Printf("blocks %d\ninodes %d/%d\ndata %d/%d\n",
					st.TotalBlocks, st.InodesUsed, st.InodesMax, st.DataUsed, st.DataMax)
				return err
			}),
		}},
	}
}

// withVolume mounts the image named by the global flag around f and
// flushes it afterwards.
func withVolume(f func(*ezfs.FileSystem, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		d, err := disk.OpenFileDisk(ctx.String(imageFlag.Name))
		if err != nil {
			return err
		}
		defer d.Close()
		fs, err := ezfs.Open(d, bcache.MkCache(bcache.DefaultCapacity, nil), nil)
		if err != nil {
			return err
		}
		if err := f(fs, ctx); err != nil {
			return err
		}
		fs.Sync()
		d.Barrier()
		return nil
	}
}

func mkfs(d disk.Disk, blocks, inodeBitmapBlocks uint32) (*ezfs.FileSystem, error) {
	if uint64(blocks) > d.Size() {
		return nil, fmt.Errorf("mkfs: %d blocks on a %d-block device", blocks, d.Size())
	}
	if inodeBitmapBlocks == 0 {
		return nil, fmt.Errorf("mkfs: inode bitmap must have at least one block")
	}
	if blocks < ezfs.MinBlocks(inodeBitmapBlocks) {
		return nil, fmt.Errorf("mkfs: need at least %d blocks", ezfs.MinBlocks(inodeBitmapBlocks))
	}
	return ezfs.Create(d, bcache.MkCache(bcache.DefaultCapacity, nil), nil, blocks, inodeBitmapBlocks), nil
}

func ls(fs *ezfs.FileSystem, w io.Writer) error {
	root := fs.Root()
	for _, name := range root.Ls() {
		if _, err := fmt.Fprintf(w, "%-28s %d\n", name, root.Find(name).Size()); err != nil {
			return err
		}
	}
	return nil
}

func put(fs *ezfs.FileSystem, name string, data []byte) error {
	f, err := file.Open(fs.Root(), name, file.CREATE|file.WRONLY)
	if err != nil {
		return err
	}
	_, err = f.Write(mm.NewUserBuffer([][]byte{data}))
	return err
}

func cat(fs *ezfs.FileSystem, name string, w io.Writer) error {
	f, err := file.Open(fs.Root(), name, file.RDONLY)
	if err != nil {
		return err
	}
	_, err = w.Write(f.ReadAll())
	return err
}
