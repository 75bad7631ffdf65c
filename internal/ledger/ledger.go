// Package ledger records every archived utterance so the archive directory
// can be browsed by voice and time without listing the filesystem.
package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one archived synthesis.
type Entry struct {
	// ID is the request ID that also names the speech slot.
	ID uuid.UUID

	// Voice is the display name the requester asked for.
	Voice string

	// VoiceID is the provider's identifier for Voice.
	VoiceID string

	// Message is the synthesized text.
	Message string

	// ArchivePath is where the raw audio was archived.
	ArchivePath string

	// RequestedBy is the Discord user ID of the requester, if known.
	RequestedBy string

	// CreatedAt is when the archive copy was written.
	CreatedAt time.Time
}

// Recorder persists ledger entries. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Nop discards every entry. It is used when no archive database is
// configured.
type Nop struct{}

// Record implements [Recorder].
func (Nop) Record(context.Context, Entry) error { return nil }

// Recent implements [Recorder].
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Memory keeps entries in process memory. It backs tests and single-run
// setups where losing the ledger on restart is acceptable.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Record implements [Recorder].
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Recent implements [Recorder]. Entries are returned newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Memory)(nil)
)
