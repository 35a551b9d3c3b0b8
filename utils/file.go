package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalArchive writes compressed transcripts below a directory. It is used
// when no R2 bucket is configured.
type LocalArchive struct {
	Root string
}

// NewLocalArchive creates the archive directory if it doesn't exist.
func NewLocalArchive(root string) (*LocalArchive, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalArchive{Root: root}, nil
}

func (a *LocalArchive) Put(_ context.Context, key string, body []byte) (string, error) {
	compressed, err := Compress(body)
	if err != nil {
		return "", err
	}
	path := filepath.Join(a.Root, filepath.FromSlash(key)+".zst")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return "", fmt.Errorf("write archive %s: %w", path, err)
	}
	return path, nil
}

// Get reads back a transcript written by Put.
func (a *LocalArchive) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.Root, filepath.FromSlash(key)+".zst"))
	if err != nil {
		return nil, err
	}
	return Decompress(data)
}
