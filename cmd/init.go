package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a new cryptfs data directory",
	Long: `init creates the on-disk layout for a new data directory (inodes/,
contents/, security/), generates a fresh master key wrapped under the
supplied password, and writes the root directory's inode record.

Running init against a data directory that already has a key store is
harmless: Mount detects the existing key.enc/key.salt pair and unlocks it
instead of bootstrapping a second time.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		_, err := mountForCLI(ctx, "Set a new mount password: ")
		if err != nil {
			return err
		}
		fmt.Printf("initialized data directory %s\n", dataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
