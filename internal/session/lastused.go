package session

import (
	"encoding/json"
	"os"

	"modelkeep/internal/common/fsutil"
	"modelkeep/pkg/types"
)

// readLastUsed loads the persisted {index, path} pointer.
func readLastUsed(path string) (types.LastUsed, error) {
	var last types.LastUsed
	if path == "" {
		return last, os.ErrNotExist
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return last, err
	}
	if err := json.Unmarshal(b, &last); err != nil {
		return last, err
	}
	return last, nil
}

// writeLastUsed persists the pointer atomically so an interrupted save
// never leaves a half-written file for the next run.
func writeLastUsed(path string, last types.LastUsed) error {
	if path == "" {
		return nil
	}
	b, err := json.Marshal(last)
	if err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(path, b, 0o644)
}
