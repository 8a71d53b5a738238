// Package journal records bridge traffic: every outbound native call and every
// callback the native side delivers for it.
package journal

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/pushbridge/errs"
)

// Entry statuses.
const (
	StatusCall    = "call"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one journaled message.
type Entry struct {
	ID uuid.UUID `json:"id"`
	// CallID links a call to the callbacks delivered for it.
	CallID     uuid.UUID       `json:"callId"`
	Direction  string          `json:"direction"`
	Module     string          `json:"module"`
	Method     string          `json:"method"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const defaultMemoryCapacity = 4096

// MemoryStore keeps the most recent entries in a fixed-size ring.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	// next is the slot the following Append writes.
	next  int
	count int
}

// NewMemoryStore keeps up to capacity entries, dropping the oldest first.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{entries: make([]Entry, capacity)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		return errs.New("journal", errs.CodeInvalid, errs.WithMessage("entry id required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.count < len(s.entries) {
		s.count++
	}
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, s.entries[(s.next-i+len(s.entries))%len(s.entries)])
	}
	return out, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
