// Command ezos boots the simulated kernel and runs a program under
// initproc, exiting with its code.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/ezos/config"
	"github.com/mit-pdos/ezos/disk"
	"github.com/mit-pdos/ezos/kernel"
	"github.com/mit-pdos/ezos/util"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:      "ezos",
		Usage:     "boot the teaching kernel and run a user program",
		ArgsUsage: "PROGRAM [ARGS...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"EZOS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "volume image; overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "bytes to feed the console before booting",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.Load(ctx.String("config"))
			if err != nil {
				return err
			}
			if img := ctx.String("image"); img != "" {
				cfg.Image = img
			}
			args := ctx.Args().Slice()
			if len(args) == 0 {
				args = []string{"hello"}
			}
			code, err := boot(cfg, ctx.String("input"), args)
			if err != nil {
				return err
			}
			if code != 0 {
				return cli.Exit(fmt.Sprintf("exit code %d", code), code&0xff)
			}
			return nil
		},
	}
}

func openDisk(cfg *config.Config) (disk.Disk, error) {
	if cfg.Image == "" {
		if cfg.SectorDisk {
			return disk.NewSectorMemDisk(uint64(cfg.TotalBlocks)), nil
		}
		return disk.NewMemDisk(uint64(cfg.TotalBlocks)), nil
	}
	if _, err := os.Stat(cfg.Image); os.IsNotExist(err) {
		return disk.NewFileDisk(cfg.Image, uint64(cfg.TotalBlocks))
	}
	return disk.OpenFileDisk(cfg.Image)
}

func boot(cfg *config.Config, input string, args []string) (int, error) {
	d, err := openDisk(cfg)
	if err != nil {
		return 0, err
	}
	defer d.Close()
	k, err := kernel.New(cfg, d, kernel.Options{Console: os.Stdout})
	if err != nil {
		return 0, err
	}
	if input != "" {
		k.Console().Feed([]byte(input))
	}
	if err := k.Boot(args); err != nil {
		return 0, err
	}
	util.DPrintf(1, "ezos: running %v\n", args)
	return k.Run()
}
