package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// atomicWrite writes data to path using write-tmp/fsync/rename/fsync-dir,
// so a reader never observes a partially written artifact. Grounded on the
// teacher's fsutil.AtomicWrite.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("artifact: create directory %s: %w", dir, err)
	}

	tmpPath, err := tempPath(path)
	if err != nil {
		return fmt.Errorf("artifact: generate temp path: %w", err)
	}

	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("artifact: create temp file: %w", err)
	}

	success := false
	defer func() {
		tmpFile.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("artifact: write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("artifact: sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("artifact: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("artifact: rename temp file: %w", err)
	}
	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		dirHandle.Close()
	}

	success = true
	return nil
}

// writeJSON writes v to path as key-sorted, 2-space-indented, newline
// terminated JSON (spec.md §6.2).
func writeJSON(path string, v interface{}) error {
	data, err := canonicalJSON(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomicWrite(path, data)
}

func tempPath(path string) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	randBytes := make([]byte, 4)
	if _, err := rand.Read(randBytes); err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%s", base, os.Getpid(), hex.EncodeToString(randBytes))), nil
}
