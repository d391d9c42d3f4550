package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

// FileStore keeps the state document as an indented JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the state file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and validates the state file.
func (s *FileStore) Load(ctx context.Context) (*models.BotConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, s.path)
		}
		log.Error(ctx, "Failed to read state file",
			"error", err,
			"path", s.path,
			"operation", "read_state_file",
		)
		return nil, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	var doc models.BotConfig
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error(ctx, "Failed to decode state file",
			"error", err,
			"path", s.path,
			"operation", "decode_state_file",
		)
		return nil, fmt.Errorf("failed to decode state file %s: %w", s.path, err)
	}

	return prepareLoaded(&doc)
}

// Save overwrites the state file. The document is written to a temporary file
// in the same directory and renamed into place.
func (s *FileStore) Save(ctx context.Context, doc *models.BotConfig) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		log.Error(ctx, "Failed to write state file",
			"error", err,
			"path", s.path,
			"operation", "write_state_file",
		)
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}

	log.Debug(ctx, "State document saved",
		"path", s.path,
		"servers", len(doc.Servers),
	)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
