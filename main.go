// Package main is the entry point for the arpguard daemon and CLI.
package main

import (
	"os"

	"firestige.xyz/arpguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
