package cryptofs

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/types"
)

// inoAllocator hands out fresh inode numbers. It seeds itself from the
// highest inode number already present under inodes/ so a remount never
// reissues a number still on disk.
type inoAllocator struct {
	next uint64
}

func newInoAllocator(inodesDir string) (*inoAllocator, error) {
	entries, err := os.ReadDir(inodesDir)
	if err != nil {
		return nil, apferrors.Io("scan inodes directory", err)
	}

	max := types.RootIno
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return &inoAllocator{next: max}, nil
}

func (a *inoAllocator) Allocate() uint64 {
	return atomic.AddUint64(&a.next, 1)
}
