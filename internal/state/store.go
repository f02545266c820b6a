package state

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store is the authoritative mapping from client id to Client. Snapshots
// replace the whole mapping; deltas overwrite fields of one existing record.
// It never holds two records for the same id, and a delta can never create
// a record. Last writer wins by arrival order: the transport carries no
// sequence numbers, so timestamps are not compared.
type Store struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{clients: make(map[string]Client)}
}

// ReplaceAll installs records as the complete fleet. Records absent from the
// new list are dropped; prior state does not survive a snapshot.
func (s *Store) ReplaceAll(records []Client) {
	next := make(map[string]Client, len(records))
	for _, c := range records {
		next[c.ID] = c
	}
	s.mu.Lock()
	s.clients = next
	s.mu.Unlock()
}

// MergeOne applies a delta to the record with the given id. Unknown ids are
// a no-op and return false. Hostname and IP are only overwritten when the
// delta carries a non-empty value; the remaining fields are taken verbatim.
func (s *Store) MergeOne(id string, u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return false
	}
	if u.Hostname != "" {
		c.Hostname = u.Hostname
	}
	if u.IP != "" {
		c.IP = u.IP
	}
	c.ProcessStatus = u.ProcessStatus
	c.CPU = u.CPU
	c.RAM = u.RAM
	c.Threads = u.Threads
	c.LastUpdate = u.LastUpdate
	c.Jobs = u.Jobs
	s.clients[id] = c
	return true
}

// Get returns the record for id, if present.
func (s *Store) Get(id string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// Snapshot returns a copy of the full mapping. Mutating the returned map
// does not affect the store.
func (s *Store) Snapshot() map[string]Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Client, len(s.clients))
	for id, c := range s.clients {
		out[id] = c
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Clear drops all records.
func (s *Store) Clear() {
	s.mu.Lock()
	s.clients = make(map[string]Client)
	s.mu.Unlock()
}

// Stats aggregates the current fleet.
func (s *Store) Stats() FleetStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var fs FleetStats
	fs.Total = len(s.clients)
	for _, c := range s.clients {
		if c.Running() {
			fs.Running++
		} else {
			fs.Stopped++
		}
		fs.TotalJobs += c.Jobs.All
	}
	return fs
}

var idSuffix = regexp.MustCompile(`^(.*?)(\d+)?$`)

// Sorted returns all records ordered by id: the alphabetic base compares
// case-insensitively with separators ignored, and a trailing numeric suffix
// compares numerically, so worker-2 sorts before worker-10.
func (s *Store) Sorted() []Client {
	s.mu.RLock()
	out := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		bi, ni := splitID(out[i].ID)
		bj, nj := splitID(out[j].ID)
		if bi != bj {
			return bi < bj
		}
		return ni < nj
	})
	return out
}

func splitID(id string) (string, int) {
	m := idSuffix.FindStringSubmatch(id)
	base := id
	num := 0
	if m != nil {
		base = m[1]
		if m[2] != "" {
			num, _ = strconv.Atoi(m[2])
		}
	}
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, base)
	return base, num
}
