// Package cmd implements cryptfsctl, the thin operator CLI for the
// encrypted filesystem engine (spec.md §6's CLI expansion). It never
// mounts the filesystem or talks to a kernel bridge; every subcommand
// opens a Filesystem through cryptofs.Mount and exercises its façade
// operations directly.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dataDir    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "cryptfsctl",
	Short: "Operator CLI for the encrypted userspace filesystem engine",
	Long: `cryptfsctl is a thin command-line tool for initializing, inspecting,
and maintaining a cryptfs data directory.

It is deliberately not a mount adapter: it never bridges to a kernel
filesystem API. Use it to bootstrap a new data directory, rotate the
mount password, verify on-disk invariants, and inspect individual inodes
for diagnostics.

Commands:
  init      bootstrap a new data directory
  verify    check on-disk invariants without repairing them
  passwd    rotate the mount password
  stat      print a decrypted inode record`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "datadir", "", "path to the cryptfs data directory (required)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an explicit config file (optional)")
	_ = rootCmd.MarkPersistentFlagRequired("datadir")
	_ = viper.BindPFlag("datadir", rootCmd.PersistentFlags().Lookup("datadir"))
}
