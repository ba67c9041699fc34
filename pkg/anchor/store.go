package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the content-addressed document store. Identifiers have the form
// "sha256:<hex>" and are derived from the stored bytes.
type Store interface {
	// Store persists data and returns its content identifier.
	Store(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by content identifier.
	Get(ctx context.Context, cid string) ([]byte, error)
	// Exists checks whether a document exists.
	Exists(ctx context.Context, cid string) (bool, error)
}

const cidPrefix = "sha256:"

// ContentID computes the identifier data is stored under.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return cidPrefix + hex.EncodeToString(sum[:])
}

// parseCID returns the hex digest of a well-formed identifier.
func parseCID(cid string) (string, error) {
	raw, ok := strings.CutPrefix(cid, cidPrefix)
	if !ok {
		return "", fmt.Errorf("invalid content id format: %s", cid)
	}
	if len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("invalid content id length: %s", cid)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid content id hex: %w", err)
	}
	return raw, nil
}

// FileStore keeps documents as blobs in a directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for shared document directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure document dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw+".blob")
}

func (s *FileStore) Store(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cid := ContentID(data)
	path := s.path(strings.TrimPrefix(cid, cidPrefix))
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}

	// Write to temp, then rename
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: 0644 is intentional for readable blob files
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return cid, nil
}

func (s *FileStore) Get(ctx context.Context, cid string) ([]byte, error) {
	raw, err := parseCID(cid)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(raw)) //nolint:gosec // cid validated as hex
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document not found: %s", cid)
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close
	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, cid string) (bool, error) {
	raw, err := parseCID(cid)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(raw))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
