package checkpoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-scooterscan/discovery"

	"github.com/klauspost/compress/zstd"
)

const version = 1

// File is the on-disk form of a resumable run.
type File struct {
	Version  int       `json:"version"`
	Target   string    `json:"target"`
	Provider string    `json:"provider"`
	RunID    string    `json:"runId"`
	Saved    time.Time `json:"saved"`

	discovery.Checkpoint
}

// Matches reports whether f was written for the same target and provider.
func (f File) Matches(target, provider string) bool {
	return f.Target == target && f.Provider == provider
}

// Path is where checkpoints for targetID live under dir.
func Path(dir, targetID string) string {
	return filepath.Join(dir, "checkpoints", targetID+".json.zst")
}

// Save writes f as zstd-compressed JSON, replacing any earlier file
// atomically.
func Save(path string, f File) error {
	f.Version = version
	if f.Saved.IsZero() {
		f.Saved = time.Now()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp)
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 256*1024)
	enc, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(f); err != nil {
		enc.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a checkpoint. A missing file is not an error and yields an
// empty File.
func Load(path string) (File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("open checkpoint: %w", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReader(file))
	if err != nil {
		return File{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var f File
	if err := json.NewDecoder(dec).Decode(&f); err != nil {
		return File{}, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if f.Version != version {
		return File{}, fmt.Errorf("checkpoint %s has version %d, want %d", path, f.Version, version)
	}
	return f, nil
}

// Remove deletes the checkpoint once a run has finished.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
