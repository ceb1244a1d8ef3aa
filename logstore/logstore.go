// Package logstore persists telemetry records as an ordered JSON array on
// disk.
//
// The store is append-only in intent but persisted by rewriting the whole
// file on every mutation, via a temp file and rename so the on-disk form
// is always a syntactically valid array. Both the broadcast scheduler and
// the receive handler append concurrently; one mutex serializes the
// read-modify-write so near-simultaneous appends cannot lose entries.
//
// There is no rotation or size cap: the file grows without bound. That is
// a deliberate fidelity decision, recorded in DESIGN.md, not an oversight.
package logstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AkitaEngineering/asnip/collector"
	"github.com/AkitaEngineering/asnip/errors"
	"github.com/AkitaEngineering/asnip/transport"
)

// Entry types distinguish locally produced from remotely received records.
const (
	TypeSelf   = "self"
	TypeRemote = "remote"
)

// Entry is one telemetry record. Self entries carry no signal quality;
// remote entries carry whatever the transport measured, which may be
// nothing.
type Entry struct {
	LogTimestamp float64           `json:"log_timestamp"`
	Type         string            `json:"type"`
	SourceNum    *uint32           `json:"source_node_num"`
	SourceHex    string            `json:"source_node_hex,omitempty"`
	RSSI         *int32            `json:"rssi"`
	SNR          *float64          `json:"snr"`
	Payload      collector.Payload `json:"payload"`
}

// Store is the ordered sequence of all log entries plus its backing file.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	logger  *slog.Logger
	now     func() time.Time
}

// Open loads the store from path. A missing or empty file yields an empty
// store; malformed content resets the store to empty and immediately
// persists that empty state. Open never fails on bad content, only
// returns the recovered store.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger, now: time.Now}
	s.load()
	return s
}

// load reads the backing file into memory, recovering to empty on any
// read or parse failure.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("log file not found, will be created on first save",
				"path", s.path)
		} else {
			s.logger.Error("could not read log file, starting empty",
				"path", s.path, "error", err)
		}
		s.entries = nil
		return
	}

	if len(data) == 0 {
		s.logger.Info("log file is empty, starting empty", "path", s.path)
		s.entries = nil
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Error("malformed log file, resetting to empty array",
			"path", s.path, "error", err)
		s.entries = nil
		if saveErr := s.persist(); saveErr != nil {
			s.logger.Error("could not rewrite reset log file",
				"path", s.path, "error", saveErr)
		}
		return
	}

	s.entries = entries
	s.logger.Info("loaded log records", "path", s.path, "records", len(entries))
}

// AppendSelf records a locally produced payload and persists the store.
func (s *Store) AppendSelf(payload collector.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		LogTimestamp: s.timestamp(),
		Type:         TypeSelf,
		SourceNum:    payload.SourceNum,
		SourceHex:    transport.FormatNodeID(payload.SourceNum),
		Payload:      payload,
	})
	return s.persistLogged()
}

// AppendRemote records a payload received from another node, with any
// signal quality the transport supplied.
func (s *Store) AppendRemote(payload collector.Payload, fromNum *uint32, fromID string, rssi *int32, snr *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fromID == "" {
		fromID = transport.FormatNodeID(fromNum)
	}
	s.entries = append(s.entries, Entry{
		LogTimestamp: s.timestamp(),
		Type:         TypeRemote,
		SourceNum:    fromNum,
		SourceHex:    fromID,
		RSSI:         rssi,
		SNR:          snr,
		Payload:      payload,
	})
	return s.persistLogged()
}

// Save persists the current in-memory sequence. Called on shutdown; every
// append already persists on its own.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLogged()
}

// Entries returns a copy of the in-memory sequence.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// persistLogged persists and logs a failure; the in-memory state is
// retained either way so the next save attempt starts clean.
func (s *Store) persistLogged() error {
	if err := s.persist(); err != nil {
		s.logger.Error("could not save log file",
			"path", s.path, "records", len(s.entries), "error", err)
		return err
	}
	s.logger.Debug("log saved", "path", s.path, "records", len(s.entries))
	return nil
}

// persist rewrites the backing file atomically: marshal the whole
// sequence, write to a temp file in the same directory, then rename over
// the target. Callers hold s.mu.
func (s *Store) persist() error {
	entries := s.entries
	if entries == nil {
		entries = []Entry{} // persist "[]", not "null"
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return errors.Wrap(err, "Store", "persist", "marshal entries")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.WrapTransient(err, "Store", "persist", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.WrapTransient(err, "Store", "persist", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapTransient(err, "Store", "persist", "close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapTransient(
			fmt.Errorf("rename %s: %w", tmpName, err),
			"Store", "persist", "atomic rename")
	}
	return nil
}

// timestamp is the current time as float seconds since epoch.
func (s *Store) timestamp() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}
