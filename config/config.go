// Package config loads kernel settings from an optional YAML file and then
// from EZOS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/ezos/ezfs"
)

const envVarPrefix = "EZOS"

type Config struct {
	Debug             uint64 `envconfig:"EZOS_DEBUG"               yaml:"debug"`
	CacheBlocks       uint64 `envconfig:"EZOS_CACHE_BLOCKS"        yaml:"cacheBlocks"`
	MemorySize        uint64 `envconfig:"EZOS_MEMORY_SIZE"         yaml:"memorySize"`
	TotalBlocks       uint32 `envconfig:"EZOS_TOTAL_BLOCKS"        yaml:"totalBlocks"`
	InodeBitmapBlocks uint32 `envconfig:"EZOS_INODE_BITMAP_BLOCKS" yaml:"inodeBitmapBlocks"`
	// Image is a disk image file; empty means a fresh in-memory volume.
	Image           string `envconfig:"EZOS_IMAGE"             yaml:"image"`
	NonBlockingDisk bool   `envconfig:"EZOS_NON_BLOCKING_DISK" yaml:"nonBlockingDisk"`
	// SectorDisk backs an in-memory volume with 4KB goose blocks.
	SectorDisk   bool   `envconfig:"EZOS_SECTOR_DISK"       yaml:"sectorDisk"`
	DiskChannels int    `envconfig:"EZOS_DISK_CHANNELS"     yaml:"diskChannels"`
	GPUWidth     uint32 `envconfig:"EZOS_GPU_WIDTH"         yaml:"gpuWidth"`
	GPUHeight    uint32 `envconfig:"EZOS_GPU_HEIGHT"        yaml:"gpuHeight"`
}

func Default() Config {
	return Config{
		CacheBlocks:       16,
		MemorySize:        8 << 20,
		TotalBlocks:       8192,
		InodeBitmapBlocks: 1,
		DiskChannels:      8,
		GPUWidth:          64,
		GPUHeight:         48,
	}
}

// Load starts from Default, applies the YAML file at path if there is one,
// then the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

var ErrInvalid = errors.New("invalid configuration")

func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.CacheBlocks == 0 {
			return "cacheBlocks", "CACHE_BLOCKS"
		}
		if c.MemorySize < 1<<20 || c.MemorySize%4096 != 0 {
			return "memorySize", "MEMORY_SIZE"
		}
		if c.InodeBitmapBlocks == 0 {
			return "inodeBitmapBlocks", "INODE_BITMAP_BLOCKS"
		}
		if c.TotalBlocks < ezfs.MinBlocks(c.InodeBitmapBlocks) {
			return "totalBlocks", "TOTAL_BLOCKS"
		}
		if c.DiskChannels <= 0 || c.DiskChannels > 1<<16 {
			return "diskChannels", "DISK_CHANNELS"
		}
		if c.GPUWidth == 0 || c.GPUHeight == 0 {
			return "gpuWidth/gpuHeight", "GPU_WIDTH/GPU_HEIGHT"
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf("%w: %s / %s_%s", ErrInvalid, y, envVarPrefix, e)
	}
	return nil
}
