package embeddings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// CacheDir is the directory under the history root holding cached vectors
const CacheDir = ".embeddings"

// WriteEmbedding writes an embedding vector to a binary file
// Format: LittleEndian float64 array
func WriteEmbedding(path string, vec []float64) error {
	if err := ValidateEmbedding(vec); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.bin")
	if err != nil {
		return fmt.Errorf("failed to create embedding file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := binary.Write(tmp, binary.LittleEndian, vec); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write embedding: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write embedding: %w", err)
	}

	// Readers never see a partially written vector
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// ReadEmbedding reads an embedding vector from a binary file
func ReadEmbedding(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat embedding file: %w", err)
	}

	size := stat.Size()
	if size == 0 {
		return nil, fmt.Errorf("embedding file is empty")
	}

	// Each float64 is 8 bytes
	if size%8 != 0 {
		return nil, fmt.Errorf("invalid embedding file size: %d (not a multiple of 8)", size)
	}

	vec := make([]float64, size/8)
	if err := binary.Read(file, binary.LittleEndian, vec); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("embedding file truncated: %w", err)
		}
		return nil, fmt.Errorf("failed to read embedding: %w", err)
	}

	return vec, nil
}

// ValidateEmbedding checks if an embedding vector is valid
func ValidateEmbedding(vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}

	for i, val := range vec {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("embedding contains invalid value at index %d: %v", i, val)
		}
	}

	return nil
}

// Cache stores embeddings keyed by the checksum of the content they were
// computed from. Revisions with identical content share one vector.
type Cache struct {
	dir string
}

// NewCache opens the cache below root, creating it if needed
func NewCache(root string) (*Cache, error) {
	dir := filepath.Join(root, CacheDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(checksum string) (string, error) {
	if checksum == "" || strings.ContainsAny(checksum, `/\.`) {
		return "", fmt.Errorf("invalid checksum %q", checksum)
	}
	return filepath.Join(c.dir, checksum+".bin"), nil
}

// Get returns the cached vector for checksum; ok is false on a miss
func (c *Cache) Get(checksum string) (vec []float64, ok bool, err error) {
	path, err := c.path(checksum)
	if err != nil {
		return nil, false, err
	}
	vec, err = ReadEmbedding(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vec, true, nil
}

func (c *Cache) Put(checksum string, vec []float64) error {
	path, err := c.path(checksum)
	if err != nil {
		return err
	}
	return WriteEmbedding(path, vec)
}

// Len reports the number of cached vectors
func (c *Cache) Len() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".bin" && !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n, nil
}
