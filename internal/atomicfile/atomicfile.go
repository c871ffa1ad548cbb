// Package atomicfile implements the write-temp+fsync+rename persistence
// pattern spec section 6.3 requires for every piece of on-disk state
// (identity, trust store, device registry, retry queue).
package atomicfile

import (
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data: write to a sibling temp file,
// fsync it, then rename over the destination. Rename is atomic on the same
// filesystem, so readers never observe a partially written file.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicfile: rename: %w", err)
	}
	return nil
}

// WritePEM atomically writes a PEM-encoded block with 0o600 permissions,
// suitable for certificates and private key material.
func WritePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := Write(path, data); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
