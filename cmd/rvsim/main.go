// Package main provides the rvsim command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/datarecording"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/rvsim/config"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/timing/core"
)

var (
	configPath  string
	kernelPath  string
	diskPath    string
	dtbPath     string
	persistDisk bool
	statsDBPath string
	maxCycles   uint64
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rvsim",
		Short: "rvsim is a cycle-accurate RV64GC system simulator",
		Long: "rvsim boots bare-metal kernels and Linux images on a " +
			"pipelined RV64IMAFDC core with SV39 paging, L1 caches, and " +
			"a small device set (UART, CLINT, SYSCON, disk).",
		RunE: run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the TOML configuration file")
	flags.StringVar(&kernelPath, "kernel", "", "path to the raw kernel image")
	flags.StringVar(&diskPath, "disk", "", "path to the raw disk image")
	flags.StringVar(&dtbPath, "dtb", "", "path to the device tree blob")
	flags.BoolVar(&persistDisk, "persist-disk", false, "write disk modifications back to the image file")
	flags.StringVar(&statsDBPath, "stats-db", "", "record run statistics into a SQLite database")
	flags.Uint64Var(&maxCycles, "max-cycles", 0, "stop after this many cycles (0 = unlimited)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rvsim: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	if kernelPath != "" {
		cfg.Image.KernelPath = kernelPath
	}
	if diskPath != "" {
		cfg.Image.DiskPath = diskPath
	}
	if dtbPath != "" {
		cfg.Image.DTBPath = dtbPath
	}
	if cfg.Image.KernelPath == "" {
		return fmt.Errorf("no kernel image given (--kernel or image.kernel_path)")
	}

	params := cfg.CoreParams()
	params.UARTOutput = os.Stdout
	if cfg.General.TraceInstructions {
		params.Trace = func(pc uint64, inst *insts.Instruction) {
			raw := uint32(0)
			if inst != nil {
				raw = inst.Raw
			}
			fmt.Fprintf(os.Stderr, "[trace] pc=%#x inst=%#08x\n", pc, raw)
		}
	}

	if cfg.Image.DiskPath != "" {
		image, err := loader.ReadDiskImage(cfg.Image.DiskPath)
		if err != nil {
			return err
		}
		params.DiskImage = image
	}

	c := core.NewCore(params)

	if c.Disk != nil && persistDisk {
		path := cfg.Image.DiskPath
		c.Disk.FlushFunc = func(data []byte) error {
			return os.WriteFile(path, data, 0o644)
		}
		atexit.Register(func() {
			if err := c.Disk.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "rvsim: flushing disk: %v\n", err)
			}
		})
	}

	err := loader.Load(c, loader.BootImages{
		KernelPath: cfg.Image.KernelPath,
		KernelAddr: cfg.StartPC() + cfg.System.KernelOffset,
		DTBPath:    cfg.Image.DTBPath,
		DTBAddr:    cfg.DTBLoadAddr(),
	})
	if err != nil {
		return err
	}

	// Pump host stdin into the UART receive queue without ever
	// blocking the simulation.
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				c.UART.QueueInput(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	if verbose {
		fmt.Fprintf(os.Stderr, "rvsim: kernel %s at %#x, reset pc %#x\n",
			cfg.Image.KernelPath, cfg.StartPC()+cfg.System.KernelOffset,
			cfg.StartPC())
	}

	halted := c.Run(maxCycles)

	report(c)
	if statsDBPath != "" {
		recordStats(c, statsDBPath)
	}

	if !halted {
		return fmt.Errorf("cycle limit reached before halt")
	}
	if c.Syscon.RebootRequested() {
		fmt.Fprintln(os.Stderr, "rvsim: guest requested reboot")
	}
	return nil
}

// report prints the end-of-run statistics block.
func report(c *core.Core) {
	stats := c.Pipeline.Stats()
	pred := c.Pipeline.Predictor().Stats()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Cycles:       %d\n", stats.Cycles)
	fmt.Fprintf(os.Stderr, "Instructions: %d\n", stats.Instructions)
	fmt.Fprintf(os.Stderr, "CPI:          %.2f\n", stats.CPI())
	fmt.Fprintf(os.Stderr, "Stalls:       %d (fetch %d, mem %d)\n",
		stats.Stalls, stats.FetchStalls, stats.MemStalls)
	fmt.Fprintf(os.Stderr, "Flushes:      %d\n", stats.Flushes)
	fmt.Fprintf(os.Stderr, "Traps:        %d (+%d interrupts)\n",
		stats.Traps, stats.Interrupts)
	fmt.Fprintf(os.Stderr, "Branches:     %d predicted, %.1f%% accurate\n",
		pred.Predictions, pred.Accuracy()*100)
	if c.ICache != nil {
		s := c.ICache.Stats()
		fmt.Fprintf(os.Stderr, "I-cache:      %.1f%% hit (%d accesses)\n",
			s.HitRate()*100, s.Hits+s.Misses)
	}
	if c.DCache != nil {
		s := c.DCache.Stats()
		fmt.Fprintf(os.Stderr, "D-cache:      %.1f%% hit (%d accesses)\n",
			s.HitRate()*100, s.Hits+s.Misses)
	}
	tlb := c.MMU.Stats()
	if tlb.Hits+tlb.Misses > 0 {
		fmt.Fprintf(os.Stderr, "TLB:          %d hits, %d misses, %d walks\n",
			tlb.Hits, tlb.Misses, tlb.Walks)
	}
}

// runStatsRow is the schema of the recorded statistics table.
type runStatsRow struct {
	Cycles         int64
	Instructions   int64
	CPI            float64
	Stalls         int64
	FetchStalls    int64
	MemStalls      int64
	Flushes        int64
	Traps          int64
	Interrupts     int64
	BranchAccuracy float64
	ICacheHitRate  float64
	DCacheHitRate  float64
}

// recordStats writes the run statistics into a SQLite database.
func recordStats(c *core.Core, path string) {
	stats := c.Pipeline.Stats()
	pred := c.Pipeline.Predictor().Stats()

	row := runStatsRow{
		Cycles:         int64(stats.Cycles),
		Instructions:   int64(stats.Instructions),
		CPI:            stats.CPI(),
		Stalls:         int64(stats.Stalls),
		FetchStalls:    int64(stats.FetchStalls),
		MemStalls:      int64(stats.MemStalls),
		Flushes:        int64(stats.Flushes),
		Traps:          int64(stats.Traps),
		Interrupts:     int64(stats.Interrupts),
		BranchAccuracy: pred.Accuracy(),
	}
	if c.ICache != nil {
		row.ICacheHitRate = c.ICache.Stats().HitRate()
	}
	if c.DCache != nil {
		row.DCacheHitRate = c.DCache.Stats().HitRate()
	}

	recorder := datarecording.NewDataRecorder(path)
	recorder.CreateTable("run_stats", row)
	recorder.InsertData("run_stats", row)
	recorder.Flush()
}
