package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"warehouse-wizard/internal/domain"
)

// FileConfig keeps the configuration slot in a JSON file. Writes go to a
// temporary file that is renamed over the target.
type FileConfig struct {
	mu   sync.Mutex
	path string
}

func NewFileConfig(path string) (*FileConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: config path must not be empty")
	}
	return &FileConfig{path: path}, nil
}

func (f *FileConfig) LoadConfig(_ context.Context) (domain.Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Attributes{}, fmt.Errorf("repository: LoadConfig: %w", domain.ErrNoConfiguration)
		}
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig read: %w", err)
	}
	var attrs domain.Attributes
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return domain.Attributes{}, fmt.Errorf("repository: LoadConfig decode: %w", err)
	}
	return attrs, nil
}

func (f *FileConfig) SaveConfig(_ context.Context, attrs domain.Attributes) error {
	doc, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: SaveConfig encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("repository: SaveConfig mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".warehouse-config-*.json")
	if err != nil {
		return fmt.Errorf("repository: SaveConfig temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repository: SaveConfig write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repository: SaveConfig close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("repository: SaveConfig rename: %w", err)
	}
	return nil
}
