package history

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// maxEntries is how many exchanges the persisted log keeps; the oldest are
// evicted first.
const maxEntries = 50

// Entry is one completed user/assistant exchange.
type Entry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Mode        string    `json:"mode"`
	UserMessage string    `json:"user_message"`
	BotAnswer   string    `json:"bot_answer"`
}

// DayGroup is one calendar date of entries for history browsing.
type DayGroup struct {
	Date    string
	Entries []Entry
}

// Store persists the exchange log as a JSON array. A malformed or missing
// file loads as an empty log; persistence failures degrade to memory-only.
type Store struct {
	path string

	mu      sync.Mutex
	entries []Entry
	lastID  int64
}

func NewStore(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure history dir: %w", err)
		}
	}
	s := &Store{path: path}
	s.load()
	return s, nil
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		// malformed store -> start fresh
		log.Printf("history: reset malformed store: %v", err)
		return
	}
	s.entries = entries
	for _, e := range entries {
		if e.ID > s.lastID {
			s.lastID = e.ID
		}
	}
}

// NextID issues a time-based id, bumped past the previous one when two
// exchanges land within the same millisecond.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Append records an exchange and trims the log to the newest maxEntries.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > maxEntries {
		s.entries = s.entries[len(s.entries)-maxEntries:]
	}
	if e.ID > s.lastID {
		s.lastID = e.ID
	}
	s.persist()
}

// Remove drops the entry with the given id; absent ids are a no-op.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	s.persist()
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.persist()
}

// Entries returns a copy in append (chronological) order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByDate groups entries by calendar date, most recent date first and most
// recent entry first within a date.
func (s *Store) ByDate() []DayGroup {
	entries := s.Entries()
	byDate := make(map[string][]Entry)
	for _, e := range entries {
		d := e.Timestamp.Format("2006-01-02")
		byDate[d] = append(byDate[d], e)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	groups := make([]DayGroup, 0, len(dates))
	for _, d := range dates {
		es := byDate[d]
		sort.Slice(es, func(i, j int) bool { return es[i].ID > es[j].ID })
		groups = append(groups, DayGroup{Date: d, Entries: es})
	}
	return groups
}

func (s *Store) persist() {
	if s.path == "" {
		return
	}
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		log.Printf("history: encode store: %v", err)
		return
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		log.Printf("history: persist store: %v", err)
	}
}
