// Package history persists each room's messages as an append-only log, one
// JSON record per line in a file per room. The store supports exactly two
// operations, appending a single record and reading the last N records, and
// owns the mapping from room names to on-disk file names.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

// Store is a per-room append-only record log rooted at a single directory.
// It is safe for concurrent use; operations on the same room are serialized,
// operations on different rooms proceed in parallel.
type Store struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the log directory if needed and returns a Store over it.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log, locks: make(map[string]*sync.Mutex)}, nil
}

// Append durably appends one record to the room's log. The record is written
// as a whole line in a single write so a crash can at worst truncate the
// final line, never interleave two records. Failures propagate to the caller
// and are never retried here.
func (s *Store) Append(room string, rec protocol.Record) error {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for room %q: %w", room, err)
	}

	f, err := os.OpenFile(s.Path(room), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log for room %q: %w", room, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to log for room %q: %w", room, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log for room %q: %w", room, err)
	}
	return nil
}

// Tail returns the last min(n, total) records of the room's log in append
// order. A missing or empty log yields an empty result, never an error;
// unreadable lines are skipped with a warning.
func (s *Store) Tail(room string, n int) []protocol.Record {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	if n <= 0 {
		return nil
	}

	f, err := os.Open(s.Path(room))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("could not read room log", "room", room, "error", err)
		}
		return nil
	}
	defer f.Close()

	// Keep only the most recent n lines while scanning.
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("could not scan room log", "room", room, "error", err)
		return nil
	}

	records := make([]protocol.Record, 0, len(lines))
	for _, line := range lines {
		var rec protocol.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.log.Warn("skipping corrupt record in room log", "room", room, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Path returns the on-disk log file for a room.
func (s *Store) Path(room string) string {
	return filepath.Join(s.dir, sanitizeRoom(room)+".log")
}

// sanitizeRoom maps a room name onto a safe file name, keeping only
// alphanumerics, dashes, and underscores. Distinct room names may collide
// after sanitization; the store accepts that, the name mapping is its call.
func sanitizeRoom(room string) string {
	var b strings.Builder
	for _, r := range room {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (s *Store) roomLock(room string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[room]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[room] = lock
	}
	return lock
}
