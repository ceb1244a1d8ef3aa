package logstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkitaEngineering/asnip/collector"
)

func tempLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sensor_log.json")
}

func testPayload(name string) collector.Payload {
	return collector.Payload{
		SourceName: name,
		Timestamp:  1700000000.5,
		Data:       map[string]any{"temp": 21.5},
	}
}

func readLogArray(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal(data, &arr), "log file must be a valid JSON array")
	return arr
}

func TestStore_AppendSelfPersists(t *testing.T) {
	path := tempLogPath(t)
	store := Open(path, slog.Default())

	require.NoError(t, store.AppendSelf(testPayload("node-a")))
	require.NoError(t, store.AppendSelf(testPayload("node-a")))

	assert.Equal(t, 2, store.Len())

	arr := readLogArray(t, path)
	require.Len(t, arr, 2)
	assert.Equal(t, "self", arr[0]["type"])
}

func TestStore_AppendRemoteCarriesSignalQuality(t *testing.T) {
	path := tempLogPath(t)
	store := Open(path, slog.Default())

	num := uint32(0xdeadbeef)
	rssi := int32(-92)
	snr := 7.25
	require.NoError(t, store.AppendRemote(testPayload("node-b"), &num, "", &rssi, &snr))

	entries := store.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, TypeRemote, entry.Type)
	assert.Equal(t, "!deadbeef", entry.SourceHex)
	require.NotNil(t, entry.RSSI)
	assert.Equal(t, int32(-92), *entry.RSSI)
	require.NotNil(t, entry.SNR)
	assert.Equal(t, 7.25, *entry.SNR)
}

func TestStore_RemoteWithoutSignalQuality(t *testing.T) {
	store := Open(tempLogPath(t), slog.Default())

	require.NoError(t, store.AppendRemote(testPayload("node-c"), nil, "!0000abcd", nil, nil))

	entry := store.Entries()[0]
	assert.Nil(t, entry.RSSI)
	assert.Nil(t, entry.SNR)
	assert.Equal(t, "!0000abcd", entry.SourceHex)
}

func TestStore_LoadExisting(t *testing.T) {
	path := tempLogPath(t)
	first := Open(path, slog.Default())
	require.NoError(t, first.AppendSelf(testPayload("node-a")))

	second := Open(path, slog.Default())
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, "node-a", second.Entries()[0].Payload.SourceName)
}

func TestStore_CorruptedFileResetsToEmpty(t *testing.T) {
	path := tempLogPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"`), 0o644))

	store := Open(path, slog.Default())
	assert.Equal(t, 0, store.Len())

	// The reset must be persisted immediately as an empty array.
	arr := readLogArray(t, path)
	assert.Empty(t, arr)
}

func TestStore_NonArrayContentResets(t *testing.T) {
	path := tempLogPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"an": "object"}`), 0o644))

	store := Open(path, slog.Default())
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, readLogArray(t, path))
}

func TestStore_EmptyFileIsEmptyStore(t *testing.T) {
	path := tempLogPath(t)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store := Open(path, slog.Default())
	assert.Equal(t, 0, store.Len())
}

func TestStore_MissingFileCreatedOnFirstSave(t *testing.T) {
	path := tempLogPath(t)
	store := Open(path, slog.Default())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "open alone must not create the file")

	require.NoError(t, store.Save())
	assert.Empty(t, readLogArray(t, path))
}

func TestStore_ConcurrentAppends(t *testing.T) {
	path := tempLogPath(t)
	store := Open(path, slog.Default())

	const perActor = 20
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perActor; i++ {
			_ = store.AppendSelf(testPayload("local"))
		}
	}()
	go func() {
		defer wg.Done()
		num := uint32(7)
		for i := 0; i < perActor; i++ {
			_ = store.AppendRemote(testPayload("peer"), &num, "", nil, nil)
		}
	}()
	wg.Wait()

	// N self + M remote appends yield exactly N+M entries, on disk too.
	assert.Equal(t, 2*perActor, store.Len())
	assert.Len(t, readLogArray(t, path), 2*perActor)
}

func TestStore_PersistFailureKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "missing", "log.json")

	store := Open(path, slog.Default())
	err := store.AppendSelf(testPayload("node-a"))
	assert.Error(t, err, "writing into a missing directory must fail")

	// In-memory state is retained for the next save attempt.
	assert.Equal(t, 1, store.Len())
}
