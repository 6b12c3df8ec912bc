package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"
)

// FileSessionStorage persists the MTProto session under a per-phone
// file so multiple accounts can share one session directory.
type FileSessionStorage struct {
	sessionDir  string
	phoneNumber string
	filePath    string
}

func NewFileSessionStorage(sessionDir, phoneNumber string) (*FileSessionStorage, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	fileName := fmt.Sprintf("session_%s.json", phoneNumber)
	filePath := filepath.Join(sessionDir, fileName)

	return &FileSessionStorage{
		sessionDir:  sessionDir,
		phoneNumber: phoneNumber,
		filePath:    filePath,
	}, nil
}

func (s *FileSessionStorage) LoadSession(ctx context.Context) (data []byte, err error) {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil, session.ErrNotFound
	}

	data, err = os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if len(data) == 0 {
		return nil, session.ErrNotFound
	}

	return data, nil
}

func (s *FileSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// GetFilePath returns the path to the session file.
func (s *FileSessionStorage) GetFilePath() string {
	return s.filePath
}

// DeleteSession removes the session file. Missing file is not an error.
func (s *FileSessionStorage) DeleteSession() error {
	if err := os.Remove(s.filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// SessionExists checks if a session file exists.
func (s *FileSessionStorage) SessionExists() bool {
	_, err := os.Stat(s.filePath)
	return err == nil
}

// Ensure FileSessionStorage implements session.Storage interface
var _ session.Storage = (*FileSessionStorage)(nil)
