package source

import (
	"fmt"
	"os"
)

// Open reads an editor buffer from disk.
func Open(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot open file: %w", err)
	}
	return string(data), nil
}

// Save writes an editor buffer to disk unchanged.
func Save(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("cannot save file: %w", err)
	}
	return nil
}
