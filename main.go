// Package main provides the entry point for rvsim.
// rvsim is a cycle-accurate RV64GC system simulator.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvsim - RV64GC system simulator")
	fmt.Println("")
	fmt.Println("Usage: rvsim --kernel <image> [--config <file>] [--disk <image>] [--dtb <blob>]")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim --help' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
