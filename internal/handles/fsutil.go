package handles

import (
	"os"

	"github.com/cryptofs/cryptfs/internal/apferrors"
)

func createFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apferrors.Io("create tmp content file", err)
	}
	return f, nil
}

func removeFile(path string) {
	os.Remove(path)
}

func renameFile(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return apferrors.Io("commit content file", err)
	}
	return nil
}

func removeFileIgnoreMissing(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apferrors.Io("remove content file", err)
	}
	return nil
}
