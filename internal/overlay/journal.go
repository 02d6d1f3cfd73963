package overlay

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// JournalMode selects the fsync discipline journal appends use.
type JournalMode uint8

const (
	NoJournal JournalMode = iota
	AsyncJournal
	SyncJournal
)

// ParseJournalMode parses the `journal=` mount option's value.
func ParseJournalMode(s string) (JournalMode, error) {
	switch s {
	case "none":
		return NoJournal, nil
	case "async":
		return AsyncJournal, nil
	case "sync":
		return SyncJournal, nil
	default:
		return 0, fmt.Errorf("overlay: unknown journal mode %q", s)
	}
}

// Journal is an append-only record of overlay mutations, written for
// crash diagnosis rather than replay: Overlay.commit always rebuilds
// state from the namespace map, never from the journal. Truncate resets
// it after a successful commit.
type Journal struct {
	mode JournalMode
	mu   sync.Mutex
	f    *os.File
}

// OpenJournal opens (creating if necessary) the journal file at path.
// NoJournal still opens the file so later mode changes don't need a
// fresh handle, but Append becomes a no-op.
func OpenJournal(path string, mode JournalMode) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{mode: mode, f: f}, nil
}

// Append writes one "timestamp op arg" line to the journal, fsyncing immediately
// under SyncJournal and leaving the write to the OS page cache otherwise.
func (j *Journal) Append(op, arg string) error {
	if j.mode == NoJournal {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	line := fmt.Sprintf("%s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), op, arg)
	if _, err := j.f.WriteString(line); err != nil {
		return err
	}
	if j.mode == SyncJournal {
		return j.f.Sync()
	}
	return nil
}

// Truncate empties the journal, called once a commit has durably
// advanced HEAD and the journal's entries are no longer needed for
// crash recovery.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.f.Truncate(0); err != nil {
		return err
	}
	_, err := j.f.Seek(0, 0)
	return err
}

// Close closes the journal's underlying file.
func (j *Journal) Close() error {
	return j.f.Close()
}
