package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"researchdao/internal/storage"
)

// Checkpoint tracks the last processed block of one cursor.
type Checkpoint struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileCursor persists named cursors to a JSON file on disk.
type FileCursor struct {
	path string
	mu   sync.Mutex
}

var _ storage.CursorStore = (*FileCursor)(nil)

// NewFileCursor stores cursors as JSON in the file at path.
func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

func (c *FileCursor) LoadCursor(_ context.Context, name string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	checkpoints, err := c.read()
	if err != nil {
		return 0, false, err
	}
	cp, ok := checkpoints[name]
	if !ok {
		return 0, false, nil
	}
	return cp.LastProcessedBlock, true, nil
}

func (c *FileCursor) SaveCursor(_ context.Context, name string, block uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	checkpoints, err := c.read()
	if err != nil {
		return err
	}
	checkpoints[name] = Checkpoint{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(checkpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *FileCursor) read() (map[string]Checkpoint, error) {
	checkpoints := make(map[string]Checkpoint)

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoints, nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(data) == 0 {
		return checkpoints, nil
	}
	if err := json.Unmarshal(data, &checkpoints); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return checkpoints, nil
}
