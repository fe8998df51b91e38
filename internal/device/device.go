// Package device persists the per-install identifier sent as deviceId in
// every sync envelope.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrPathRequired is returned when no id file path is given.
var ErrPathRequired = errors.New("device: id file path is required")

// LoadOrCreate returns the id stored at path. When the file is missing or
// blank a new UUID is written there with 0600 permissions and returned. The
// id never changes once written.
func LoadOrCreate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrPathRequired
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("device: read id failed: %w", err)
	}

	id := uuid.NewString()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("device: create dir failed: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("device: write id failed: %w", err)
	}

	return id, nil
}
