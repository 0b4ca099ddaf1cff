// Package config loads the simulator configuration from a TOML file.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/core"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

// Default physical address map.
const (
	DefaultRAMBase    = 0x8000_0000
	DefaultUARTBase   = 0x1000_0000
	DefaultCLINTBase  = 0x0200_0000
	DefaultSysconBase = 0x0010_0000
	DefaultDiskBase   = 0x9000_0000
)

// Config is the root configuration record.
type Config struct {
	General  GeneralConfig  `toml:"general"`
	System   SystemConfig   `toml:"system"`
	Memory   MemoryConfig   `toml:"memory"`
	Cache    CacheHierarchy `toml:"cache"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Image    ImageConfig    `toml:"image"`
}

// GeneralConfig holds run-wide switches.
type GeneralConfig struct {
	TraceInstructions bool   `toml:"trace_instructions"`
	StartPC           string `toml:"start_pc"`
}

// SystemConfig locates devices and sets bus timing.
type SystemConfig struct {
	UARTBase       string `toml:"uart_base"`
	CLINTBase      string `toml:"clint_base"`
	SysconBase     string `toml:"syscon_base"`
	DiskBase       string `toml:"disk_base"`
	RAMBase        string `toml:"ram_base"`
	KernelOffset   uint64 `toml:"kernel_offset"`
	BusLatency     uint64 `toml:"bus_latency"`
	CyclesPerMTime uint64 `toml:"cycles_per_mtime"`
}

// MemoryConfig sizes RAM and the TLB.
type MemoryConfig struct {
	RAMSizeMB uint64 `toml:"ram_size_mb"`
	TLBSize   int    `toml:"tlb_size"`
}

// CacheHierarchy holds the two L1 caches.
type CacheHierarchy struct {
	I CacheConfig `toml:"i"`
	D CacheConfig `toml:"d"`
}

// CacheConfig describes one cache.
type CacheConfig struct {
	Enabled     bool   `toml:"enabled"`
	Size        int    `toml:"size"`
	Line        int    `toml:"line"`
	Ways        int    `toml:"ways"`
	Policy      string `toml:"policy"`
	HitLatency  uint64 `toml:"hit_latency"`
	MissLatency uint64 `toml:"miss_latency"`
}

// PipelineConfig selects the branch predictor.
type PipelineConfig struct {
	BranchPredictor string     `toml:"branch_predictor"`
	TableSize       uint32     `toml:"table_size"`
	BTBSize         uint32     `toml:"btb_size"`
	HistoryBits     uint32     `toml:"history_bits"`
	TAGE            TAGEConfig `toml:"tage"`
}

// TAGEConfig holds TAGE parameters.
type TAGEConfig struct {
	TableSize      uint32   `toml:"table_size"`
	HistoryLengths []uint32 `toml:"history_lengths"`
	TagWidths      []uint32 `toml:"tag_widths"`
	ResetInterval  uint32   `toml:"reset_interval"`
}

// ImageConfig names the boot artifacts.
type ImageConfig struct {
	KernelPath  string `toml:"kernel_path"`
	DiskPath    string `toml:"disk_path"`
	DTBPath     string `toml:"dtb_path"`
	DTBLoadAddr string `toml:"dtb_load_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			StartPC: fmt.Sprintf("%#x", uint64(DefaultRAMBase)),
		},
		System: SystemConfig{
			UARTBase:       fmt.Sprintf("%#x", uint64(DefaultUARTBase)),
			CLINTBase:      fmt.Sprintf("%#x", uint64(DefaultCLINTBase)),
			SysconBase:     fmt.Sprintf("%#x", uint64(DefaultSysconBase)),
			DiskBase:       fmt.Sprintf("%#x", uint64(DefaultDiskBase)),
			RAMBase:        fmt.Sprintf("%#x", uint64(DefaultRAMBase)),
			KernelOffset:   0,
			BusLatency:     4,
			CyclesPerMTime: 10,
		},
		Memory: MemoryConfig{
			RAMSizeMB: 128,
			TLBSize:   32,
		},
		Cache: CacheHierarchy{
			I: CacheConfig{
				Enabled: true, Size: 16 * 1024, Line: 64, Ways: 2,
				Policy: "lru", HitLatency: 1, MissLatency: 20,
			},
			D: CacheConfig{
				Enabled: true, Size: 16 * 1024, Line: 64, Ways: 4,
				Policy: "lru", HitLatency: 1, MissLatency: 20,
			},
		},
		Pipeline: PipelineConfig{
			BranchPredictor: "bimodal",
			TableSize:       1024,
			BTBSize:         256,
			HistoryBits:     12,
		},
	}
}

// Load reads a TOML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// parseHex accepts "0x"-prefixed or bare hex strings, with a default
// for the empty string.
func parseHex(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return def
	}
	return v
}

// StartPC returns the reset PC.
func (c *Config) StartPC() uint64 {
	return parseHex(c.General.StartPC, DefaultRAMBase)
}

// RAMBase returns the RAM base address.
func (c *Config) RAMBase() uint64 {
	return parseHex(c.System.RAMBase, DefaultRAMBase)
}

// DTBLoadAddr returns the device-tree load address, defaulting to the
// last 2 MiB of RAM.
func (c *Config) DTBLoadAddr() uint64 {
	def := c.RAMBase() + c.Memory.RAMSizeMB*1024*1024 - 2*1024*1024
	return parseHex(c.Image.DTBLoadAddr, def)
}

// cacheConfig converts one cache section, or nil when disabled.
func cacheConfig(cc CacheConfig) *cache.Config {
	if !cc.Enabled {
		return nil
	}
	out := &cache.Config{
		Size:          cc.Size,
		Associativity: cc.Ways,
		BlockSize:     cc.Line,
		Policy:        cache.ParsePolicy(cc.Policy),
		HitLatency:    cc.HitLatency,
		MissLatency:   cc.MissLatency,
	}
	if out.Size == 0 {
		out.Size = 16 * 1024
	}
	if out.Associativity == 0 {
		out.Associativity = 1
	}
	if out.BlockSize == 0 {
		out.BlockSize = 64
	}
	if out.HitLatency == 0 {
		out.HitLatency = 1
	}
	if out.MissLatency == 0 {
		out.MissLatency = 20
	}
	return out
}

// CoreParams assembles core construction parameters. The disk image,
// output writer, and trace hook are supplied by the caller.
func (c *Config) CoreParams() core.Params {
	return core.Params{
		RAMBase:    c.RAMBase(),
		RAMSize:    c.Memory.RAMSizeMB * 1024 * 1024,
		ResetPC:    c.StartPC(),
		UARTBase:   parseHex(c.System.UARTBase, DefaultUARTBase),
		CLINTBase:  parseHex(c.System.CLINTBase, DefaultCLINTBase),
		SysconBase: parseHex(c.System.SysconBase, DefaultSysconBase),
		DiskBase:   parseHex(c.System.DiskBase, DefaultDiskBase),
		ICache:     cacheConfig(c.Cache.I),
		DCache:     cacheConfig(c.Cache.D),
		Predictor: pipeline.PredictorConfig{
			Kind:        pipeline.ParsePredictorKind(c.Pipeline.BranchPredictor),
			TableSize:   c.Pipeline.TableSize,
			BTBSize:     c.Pipeline.BTBSize,
			HistoryBits: c.Pipeline.HistoryBits,
			TAGE: pipeline.TAGEConfig{
				TableSize:      c.Pipeline.TAGE.TableSize,
				HistoryLengths: c.Pipeline.TAGE.HistoryLengths,
				TagWidths:      c.Pipeline.TAGE.TagWidths,
				ResetInterval:  c.Pipeline.TAGE.ResetInterval,
			},
		},
		TLBSize:        c.Memory.TLBSize,
		BusLatency:     c.System.BusLatency,
		CyclesPerMTime: c.System.CyclesPerMTime,
	}
}
