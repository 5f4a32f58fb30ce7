package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempPattern is the suffix used for in-flight writes. Names starting with a
// dot are excluded from every directory scan.
const TempPattern = ".gridsync.tmp.*"

// VerifyFunc inspects the bytes about to be committed and rejects them with an error.
type VerifyFunc func(data []byte) error

// WriteFileAtomic writes data next to path and renames it into place once it
// is flushed to disk. verify runs before anything touches the disk.
func WriteFileAtomic(path string, data []byte, verify VerifyFunc) error {
	if verify != nil {
		if err := verify(data); err != nil {
			return err
		}
	}

	if err := EnsureParent(path); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+TempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	committed = true
	return nil
}
