package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LoadLegacyFile reads the pre-pipeline state file: a JSON object mapping
// session keys to lists of remote URLs, with no per-item state. A missing
// file returns (nil, nil) so callers can skip the import silently.
func LoadLegacyFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy file: %w", err)
	}

	var sessions map[string][]string
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse legacy file: %w", err)
	}
	return sessions, nil
}
