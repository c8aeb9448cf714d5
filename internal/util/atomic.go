// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// pendingFile is a temp file that becomes target on commit. The temp file
// lives next to target so the final rename never crosses filesystems.
type pendingFile struct {
	target string
	f      *os.File
}

func createPending(target string) (*pendingFile, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", abs, err)
	}
	return &pendingFile{target: abs, f: f}, nil
}

// commit flushes the temp file to disk, applies perm and renames it over the
// target.
func (p *pendingFile) commit(data []byte, perm os.FileMode) error {
	if _, err := p.f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", p.f.Name(), err)
	}
	if err := p.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", p.f.Name(), err)
	}
	// Windows refuses to rename an open file.
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p.f.Name(), err)
	}
	if err := os.Chmod(p.f.Name(), perm); err != nil {
		return fmt.Errorf("chmod %s: %w", p.f.Name(), err)
	}
	if err := os.Rename(p.f.Name(), p.target); err != nil {
		return fmt.Errorf("replace %s: %w", p.target, err)
	}
	return nil
}

// discard removes the temp file after a failed commit.
func (p *pendingFile) discard() {
	_ = p.f.Close()
	_ = os.Remove(p.f.Name())
}

// AtomicWriteFile replaces path with data. Readers see either the previous
// file or the complete new one, never a partial write. Parent directories
// are created as needed.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	p, err := createPending(path)
	if err != nil {
		return err
	}
	if err := p.commit(data, perm); err != nil {
		p.discard()
		return err
	}
	return nil
}
