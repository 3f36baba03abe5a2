package discordia

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLBackupReadMissingFile(t *testing.T) {
	backup := NewJSONLBackup(filepath.Join(t.TempDir(), "nope.jsonl"))

	records, err := backup.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJSONLBackupWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	backup := NewJSONLBackup(path)

	category := Category{ID: "cat-1", Name: "Log", ServerID: "srv"}
	message := Message{
		ID:        "msg-1",
		Content:   "hello",
		AuthorID:  "user-1",
		ChannelID: "chan-1",
		Timestamp: time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, backup.Write(BackupTypeCategory, category))
	require.NoError(t, backup.Write(BackupTypeMessage, message))

	records, err := backup.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, BackupTypeCategory, records[0].Type)
	assert.Equal(t, BackupTypeMessage, records[1].Type)

	var restored Category
	require.NoError(t, json.Unmarshal(records[0].Data, &restored))
	assert.Equal(t, category.ID, restored.ID)
	assert.Equal(t, category.Name, restored.Name)

	var restoredMessage Message
	require.NoError(t, json.Unmarshal(records[1].Data, &restoredMessage))
	assert.Equal(t, message.Content, restoredMessage.Content)
	assert.True(t, message.Timestamp.Equal(restoredMessage.Timestamp))
}

func TestJSONLBackupAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")

	first := NewJSONLBackup(path)
	require.NoError(
		t,
		first.Write(BackupTypeUser, User{ID: "user-1", Username: "somebody"}),
	)

	// a new writer on the same path appends, never truncates
	second := NewJSONLBackup(path)
	require.NoError(
		t,
		second.Write(BackupTypeUser, User{ID: "user-2", Username: "other"}),
	)

	records, err := second.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestJSONLBackupSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	backup := NewJSONLBackup(path)

	require.NoError(
		t,
		backup.Write(BackupTypeChannel, Channel{ID: "chan-1", Name: "general"}),
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := backup.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryBackup(t *testing.T) {
	backup := NewMemoryBackup()
	require.NoError(
		t,
		backup.Write(BackupTypeUser, User{ID: "user-1"}),
	)

	records, err := backup.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, BackupTypeUser, records[0].Type)
}
