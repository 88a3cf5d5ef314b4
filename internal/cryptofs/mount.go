package cryptofs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cryptofs/cryptfs/internal/apferrors"
	"github.com/cryptofs/cryptfs/internal/config"
	"github.com/cryptofs/cryptfs/internal/crypto"
	"github.com/cryptofs/cryptfs/internal/dirstore"
	"github.com/cryptofs/cryptfs/internal/handles"
	"github.com/cryptofs/cryptfs/internal/inodestore"
	"github.com/cryptofs/cryptfs/internal/keystore"
	"github.com/cryptofs/cryptfs/internal/obslog"
	"github.com/cryptofs/cryptfs/internal/types"
)

const (
	inodesSubdir   = "inodes"
	contentsSubdir = "contents"
	securitySubdir = "security"
	configFileName = "config.json"
)

// suiteConfig is the plaintext record persisted at first mount (spec.md
// §3's expansion): which cipher suite and block size this data directory
// was created with, so a later mount with a mismatched value fails fast
// instead of feeding the wrong key into an AEAD and producing confusing
// per-frame authentication failures.
type suiteConfig struct {
	Cipher    string `json:"cipher"`
	BlockSize int    `json:"block_size"`
}

// Mount implements §4.9's bootstrap: it creates the data directory layout
// on first use, wires C3 (key store) through C7 (this façade), reconciles
// security/config.json, and cleans up stray tmp files left by a crashed
// prior session (spec.md §9's recovery policy).
func Mount(ctx context.Context, cfg config.Config, passwords keystore.PasswordProvider) (*Filesystem, error) {
	log := obslog.NewMount()

	inodesDir := filepath.Join(cfg.DataDir, inodesSubdir)
	contentsDir := filepath.Join(cfg.DataDir, contentsSubdir)
	securityDir := filepath.Join(cfg.DataDir, securitySubdir)

	firstMount := !dirExists(cfg.DataDir) || isEmptyDir(cfg.DataDir)

	if !firstMount {
		if err := validateDataDirShape(cfg.DataDir); err != nil {
			return nil, err
		}
	}

	for _, d := range []string{cfg.DataDir, inodesDir, contentsDir, securityDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, apferrors.Io("create data directory layout", err)
		}
	}

	if err := reconcileSuiteConfig(securityDir, cfg); err != nil {
		return nil, err
	}

	keyStore, err := keystore.Open(securityDir, cfg.SuiteName(), cfg.KDFParams(), passwords, cfg.KeyCacheTTL)
	if err != nil {
		return nil, err
	}
	masterKey, err := keyStore.MasterKey(ctx)
	if err != nil {
		return nil, err
	}

	contentKey, err := crypto.ContentKey(masterKey)
	if err != nil {
		return nil, err
	}
	nameEncKey, err := crypto.NameEncKey(masterKey)
	if err != nil {
		return nil, err
	}
	nameHashKey, err := crypto.NameHashKey(masterKey)
	if err != nil {
		return nil, err
	}

	// Content (file bytes, inode records) and directory entry payloads are
	// encrypted under cryptographically independent HKDF sub-keys, each
	// wrapped in its own Suite (spec.md §4.1's name/content key
	// independence requirement): a leaked directory-entry suite never
	// exposes file content or vice versa.
	contentSuite, err := crypto.NewSuite(cfg.SuiteName(), contentKey)
	if err != nil {
		return nil, err
	}
	nameSuite, err := crypto.NewSuite(cfg.SuiteName(), nameEncKey)
	if err != nil {
		return nil, err
	}

	if err := cleanStrayTmpFiles(contentsDir, log); err != nil {
		return nil, err
	}

	inodes := inodestore.New(inodesDir, contentSuite, cfg.BlockSize)
	dirs := dirstore.New(contentsDir, nameSuite, cfg.BlockSize, nameHashKey)
	handleMgr := handles.New(inodes, contentsDir, contentSuite, cfg.BlockSize)

	if firstMount {
		now := time.Now().UTC()
		if err := inodes.Write(types.InodeRecord{
			Ino: types.RootIno, Kind: types.Directory, Perm: 0o755, Nlink: 2,
			Atime: now, Mtime: now, Ctime: now, Crtime: now,
		}); err != nil {
			return nil, err
		}
		if err := dirs.CreateDir(types.RootIno, types.RootIno); err != nil {
			return nil, err
		}
	}

	inos, err := newInoAllocator(inodesDir)
	if err != nil {
		return nil, err
	}

	log.Info("mounted data dir %s (cipher=%s, block_size=%d, first_mount=%t)", cfg.DataDir, cfg.Cipher, cfg.BlockSize, firstMount)

	return &Filesystem{
		keys:    keyStore,
		inodes:  inodes,
		dirs:    dirs,
		handles: handleMgr,
		inos:    inos,
		log:     log,
	}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}

// validateDataDirShape enforces spec.md §3.1: a well-formed data directory
// contains exactly inodes/, contents/ and security/ at its top level. It is
// only applied on a non-first mount, since a first mount is exactly the
// step that creates those three entries.
func validateDataDirShape(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return apferrors.Io("read data directory", err)
	}
	for _, e := range entries {
		switch e.Name() {
		case inodesSubdir, contentsSubdir, securitySubdir:
			if !e.IsDir() {
				return fmt.Errorf("%w: %q must be a directory", apferrors.ErrInvalidDataDirStruct, e.Name())
			}
		default:
			return fmt.Errorf("%w: unexpected top-level entry %q", apferrors.ErrInvalidDataDirStruct, e.Name())
		}
	}
	return nil
}

// reconcileSuiteConfig writes security/config.json on first mount, or
// verifies the mount-time cipher/block size against a previously written
// one (spec.md §3's expansion).
func reconcileSuiteConfig(securityDir string, cfg config.Config) error {
	path := filepath.Join(securityDir, configFileName)

	existing, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return apferrors.Io("read security/config.json", err)
		}
		data, merr := json.Marshal(suiteConfig{Cipher: cfg.Cipher, BlockSize: cfg.BlockSize})
		if merr != nil {
			return apferrors.Serialization("encode security/config.json", merr)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return apferrors.Io("write security/config.json", err)
		}
		return nil
	}

	var want suiteConfig
	if err := json.Unmarshal(existing, &want); err != nil {
		return apferrors.Serialization("decode security/config.json", err)
	}
	if want.Cipher != cfg.Cipher || want.BlockSize != cfg.BlockSize {
		return fmt.Errorf("%w: data dir was created with cipher=%s block_size=%d, mount requested cipher=%s block_size=%d",
			apferrors.ErrInvalidDataDirStruct, want.Cipher, want.BlockSize, cfg.Cipher, cfg.BlockSize)
	}
	return nil
}

// cleanStrayTmpFiles removes any "<ino>.<fh>.tmp" or "<ino>.truncate.tmp"
// left over from a crashed prior session (spec.md §5's cancellation
// guarantee: a stray tmp never affects the committed "<ino>" content, so
// it is safe to simply delete rather than attempt recovery).
func cleanStrayTmpFiles(contentsDir string, log *obslog.Mount) error {
	entries, err := os.ReadDir(contentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apferrors.Io("scan contents directory for stray tmp files", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".tmp") {
			continue
		}
		if !looksLikeContentTmp(name) {
			continue
		}
		full := filepath.Join(contentsDir, name)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return apferrors.Io("remove stray tmp file "+name, err)
		}
		log.Warn("removed stray tmp file %s left from a crashed session", name)
	}
	return nil
}

// looksLikeContentTmp reports whether name matches "<ino>.<fh>.tmp" or
// "<ino>.truncate.tmp" or "<ino>.create.tmp", where <ino> and <fh> are
// decimal. It intentionally does not try to match every producer of a
// ".tmp" suffix in this tree; directory-entry and inode-record tmp files
// live under their own subdirectories and are never left directly inside
// contents/.
func looksLikeContentTmp(name string) bool {
	rest := strings.TrimSuffix(name, ".tmp")
	parts := strings.Split(rest, ".")
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
		return false
	}
	if parts[1] == "truncate" || parts[1] == "create" {
		return true
	}
	_, err := strconv.ParseUint(parts[1], 10, 64)
	return err == nil
}
