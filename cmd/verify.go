package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptofs/cryptfs/internal/types"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check on-disk invariants without repairing them",
	Long: `verify walks the data directory and reports every violation of
spec.md §3.3/§8's invariants it finds: directory entries pointing at an
inode that cannot be read, directories missing their "." or ".." sentinel
entries, and directories that cannot be listed. Entries that fail to
decrypt are skipped by the listing (and logged as warnings), not reported
here. It never repairs anything; it only reports.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx := context.Background()
		fs, err := mountForCLI(ctx, "Mount password: ")
		if err != nil {
			return err
		}

		violations := 0
		report := func(format string, args ...interface{}) {
			violations++
			fmt.Fprintf(os.Stderr, "VIOLATION: "+format+"\n", args...)
		}

		var walk func(ino uint64, seen map[uint64]bool)
		walk = func(ino uint64, seen map[uint64]bool) {
			if seen[ino] {
				return
			}
			seen[ino] = true

			entries, err := fs.ReadDir(ctx, ino)
			if err != nil {
				report("directory ino=%d: read_dir failed: %v", ino, err)
				return
			}

			hasSelf, hasParent := false, false
			for _, e := range entries {
				switch e.Name {
				case types.SelfName:
					hasSelf = true
				case types.ParentName:
					hasParent = true
				}
				if _, err := fs.GetAttr(ctx, e.Ino); err != nil {
					report("directory ino=%d: entry %q points at unreadable inode %d: %v", ino, e.Name, e.Ino, err)
					continue
				}
				if e.Kind == types.Directory && e.Name != types.SelfName && e.Name != types.ParentName {
					walk(e.Ino, seen)
				}
			}
			if !hasSelf {
				report("directory ino=%d: missing \".\" sentinel entry", ino)
			}
			if !hasParent {
				report("directory ino=%d: missing \"..\" sentinel entry", ino)
			}
		}

		walk(types.RootIno, map[uint64]bool{})

		if violations == 0 {
			fmt.Println("ok: no invariant violations found")
			return nil
		}
		return fmt.Errorf("found %d invariant violation(s)", violations)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
