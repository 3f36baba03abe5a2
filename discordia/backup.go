package discordia

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Entity type identifiers used in backup records.
const (
	BackupTypeCategory = "category"
	BackupTypeChannel  = "channel"
	BackupTypeMessage  = "message"
	BackupTypeUser     = "user"
)

// BackupRecord is one line of the backup log: a type identifier plus the
// entity's fields.
type BackupRecord struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BackupWriter is the append-only bookkeeping log contract. Writes are
// best-effort from the caller's perspective - a failed write is logged
// upstream and never aborts the operation that triggered it.
type BackupWriter interface {
	Write(entityType string, entity any) error
	ReadAll() ([]BackupRecord, error)
}

// JSONLBackup appends one JSON record per line to a file. Reading a
// missing file yields an empty slice rather than an error, and no
// deduplication is performed on read.
type JSONLBackup struct {
	path string
	mu   sync.Mutex
}

func NewJSONLBackup(path string) *JSONLBackup {
	return &JSONLBackup{path: path}
}

func (b *JSONLBackup) Write(entityType string, entity any) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("error marshaling %s record: %w", entityType, err)
	}
	line, err := json.Marshal(BackupRecord{Type: entityType, Data: data})
	if err != nil {
		return fmt.Errorf("error marshaling %s record: %w", entityType, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(
		b.path,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return fmt.Errorf("error opening backup file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err = f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("error appending to backup file: %w", err)
	}
	return nil
}

func (b *JSONLBackup) ReadAll() ([]BackupRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []BackupRecord{}, nil
		}
		return nil, fmt.Errorf("error opening backup file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	records := []BackupRecord{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record BackupRecord
		if err = json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("error parsing backup record: %w", err)
		}
		records = append(records, record)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading backup file: %w", err)
	}
	return records, nil
}

// MemoryBackup is an in-memory BackupWriter for tests.
type MemoryBackup struct {
	records []BackupRecord
	mu      sync.Mutex
}

func NewMemoryBackup() *MemoryBackup {
	return &MemoryBackup{}
}

func (b *MemoryBackup) Write(entityType string, entity any) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, BackupRecord{Type: entityType, Data: data})
	return nil
}

func (b *MemoryBackup) ReadAll() ([]BackupRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	records := make([]BackupRecord, len(b.records))
	copy(records, b.records)
	return records, nil
}
