package signal

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirPermissions restricts data directories to the owner. Signal state
// includes key material.
const dirPermissions = 0700

// attachmentsSubdir holds temporary outbound attachment files.
const attachmentsSubdir = "attachments"

// AttachmentStore manages the on-disk layout backing attachment sends:
// a per-account data directory with an attachments scratch area whose
// files are deleted once the daemon has had time to read them.
type AttachmentStore struct {
	basePath string
}

// NewAttachmentStore creates a store rooted at basePath.
func NewAttachmentStore(basePath string) *AttachmentStore {
	return &AttachmentStore{basePath: basePath}
}

// Init creates the directory layout and verifies it is writable.
func (s *AttachmentStore) Init() error {
	if s.basePath == "" {
		return &ValidationError{Field: "base path", Reason: "cannot be empty"}
	}
	for _, dir := range []string{s.basePath, s.AttachmentsDir()} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	probe := filepath.Join(s.basePath, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

// AttachmentsDir returns the scratch directory for outbound attachments.
func (s *AttachmentStore) AttachmentsDir() string {
	return filepath.Join(s.basePath, attachmentsSubdir)
}

// TempFile writes data into a fresh file in the attachments directory
// and returns its path. The caller owns the file's lifetime; queued
// attachment actions delete it after the post-send grace period.
func (s *AttachmentStore) TempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(s.AttachmentsDir(), pattern)
	if err != nil {
		return "", fmt.Errorf("creating attachment file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing attachment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing attachment file: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes attachment files, ignoring those already gone.
func (s *AttachmentStore) Remove(paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return firstErr
}
