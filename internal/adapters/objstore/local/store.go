package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pawtrace-qr/internal/ports/objstore"
)

// store escribe objetos en un directorio local. Para dev/handoff: el
// deployment real apunta al bucket del hosting.
type store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (objstore.Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("objstore dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore dir: %w", err)
	}
	return &store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *store) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" || strings.Contains(path, "..") {
		return "", errors.New("invalid object path")
	}

	full := filepath.Join(s.dir, filepath.FromSlash(path))
	if !upsert {
		if _, err := os.Stat(full); err == nil {
			return s.baseURL + "/" + path, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("objstore: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("objstore: %w", err)
	}
	return s.baseURL + "/" + path, nil
}
