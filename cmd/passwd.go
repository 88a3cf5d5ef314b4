package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptofs/cryptfs/internal/cryptofs"
	"github.com/cryptofs/cryptfs/internal/keystore"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Rotate the mount password",
	Long: `passwd re-derives the wrap key under a new password and rewrites
security/key.enc in place (spec.md §4.3's change_password). The salt does
not change.

Non-interactively, set CRYPTOFS_OLD_PASSWORD and CRYPTOFS_NEW_PASSWORD.
A password not given that way is taken from CRYPTOFS_PASSWORD if that is
set, and otherwise prompted for on stdin.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()

		old := resolvePassword("CRYPTOFS_OLD_PASSWORD", "Current password: ")
		next := resolvePassword("CRYPTOFS_NEW_PASSWORD", "New password: ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var fs *cryptofs.Filesystem
		fs, err = cryptofs.Mount(ctx, cfg, keystore.StaticPassword(old))
		if err != nil {
			return err
		}

		if err := fs.ChangePassword(ctx, old, next); err != nil {
			return err
		}
		fmt.Println("password rotated")
		return nil
	},
}

func resolvePassword(envVar, prompt string) string {
	if v, ok := os.LookupEnv(envVar); ok {
		return v
	}
	p, err := (envOrPromptPassword{prompt: prompt}).Password(context.Background())
	if err != nil {
		return ""
	}
	return p
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}
