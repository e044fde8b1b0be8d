package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"researchdao/internal/model"
)

// DefaultJournalMaxBytes is the size at which the journal file is rotated.
const DefaultJournalMaxBytes int64 = 64 << 20

// JsonlJournal appends indexed events to a JSONL file. The file stays open
// between appends, every batch is synced to disk, and the file is renamed
// aside with a timestamp suffix once it would grow past maxBytes.
type JsonlJournal struct {
	path     string
	maxBytes int64
	now      func() time.Time

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewJsonlJournal returns a journal writing to path. maxBytes <= 0 uses
// DefaultJournalMaxBytes.
func NewJsonlJournal(path string, maxBytes int64) *JsonlJournal {
	if maxBytes <= 0 {
		maxBytes = DefaultJournalMaxBytes
	}
	return &JsonlJournal{path: path, maxBytes: maxBytes, now: time.Now}
}

// Append writes events as one JSON line each. A batch is either fully
// encoded or not written at all.
func (j *JsonlJournal) Append(events []model.IndexedEvent) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("marshal event %s: %w", event.Key(), err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		if err := j.open(); err != nil {
			return err
		}
	}
	if j.size > 0 && j.size+int64(buf.Len()) > j.maxBytes {
		if err := j.rotate(); err != nil {
			return err
		}
	}

	n, err := j.file.Write(buf.Bytes())
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close releases the journal file. A later Append reopens it.
func (j *JsonlJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *JsonlJournal) open() error {
	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	j.file = file
	j.size = info.Size()
	return nil
}

func (j *JsonlJournal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	j.file = nil

	rotated := j.path + "." + j.now().UTC().Format("20060102T150405.000000000")
	if err := os.Rename(j.path, rotated); err != nil {
		return fmt.Errorf("rotate journal: %w", err)
	}
	return j.open()
}
