// Package store keeps the results of a run: one record per method
// invocation, navigable as a ring.
package store

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
)

// CodeStorage is the numeric base of storage errors.
const CodeStorage = 15000

var (
	ErrSealed = errors.New("record sealed")
	ErrEmpty  = errors.New("store has no data records")
)

// Code returns the numeric code of a storage error, or 0.
func Code(err error) int {
	switch {
	case errors.Is(err, ErrSealed):
		return CodeStorage + 1
	case errors.Is(err, ErrEmpty):
		return CodeStorage + 2
	}
	return 0
}

// Store is an ordered, ring-navigable sequence of records. A sequence run
// ends the list with a SEQ meta-record that navigation never selects.
//
// Only the worker running the experiment creates records and moves the ring;
// readers may inspect the store concurrently.
type Store struct {
	id uuid.UUID

	mu      sync.RWMutex
	records []*Record
	current int

	callbacks []func(*Record)
	cbMu      sync.RWMutex
}

// New creates an empty store with a fresh run id.
func New() *Store {
	return &Store{
		id:      uuid.New(),
		current: -1,
	}
}

// NewWithID creates an empty store for an existing run, such as one read back
// from an archive.
func NewWithID(id uuid.UUID) *Store {
	return &Store{
		id:      id,
		current: -1,
	}
}

// RunID identifies the run the store belongs to.
func (s *Store) RunID() uuid.UUID {
	return s.id
}

// Create appends a record for kind and makes it current.
func (s *Store) Create(kind method.Kind) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Record{store: s, method: kind}
	s.records = append(s.records, r)
	s.current = len(s.records) - 1
	return r
}

// AddMeta appends the sequence meta-record holding ps. The current record is
// unchanged.
func (s *Store) AddMeta(ps method.Params) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Record{store: s, method: method.SEQ, params: ps.Clone()}
	s.records = append(s.records, r)
	return r
}

// dataLen is the number of records navigation visits.
func (s *Store) dataLen() int {
	n := len(s.records)
	if n > 0 && s.records[n-1].IsMeta() {
		n--
	}
	return n
}

// First selects the first record.
func (s *Store) First() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataLen() == 0 {
		return nil
	}
	s.current = 0
	return s.records[0]
}

// Next advances to the following record, wrapping from the last data-bearing
// record to the first.
func (s *Store) Next() *Record {
	return s.step(1)
}

// Previous moves to the preceding record, wrapping from the first to the last
// data-bearing record.
func (s *Store) Previous() *Record {
	return s.step(-1)
}

func (s *Store) step(d int) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.dataLen()
	if n == 0 {
		return nil
	}
	if s.current < 0 || s.current >= n {
		s.current = 0
		return s.records[0]
	}
	s.current = (s.current + d + n) % n
	return s.records[s.current]
}

// Current returns the record samples are written to, or nil.
func (s *Store) Current() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current < 0 || s.current >= len(s.records) {
		return nil
	}
	return s.records[s.current]
}

// Index returns the position of the current record, or -1.
func (s *Store) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Append writes smp to the current record.
func (s *Store) Append(smp sample.Sample) error {
	r := s.Current()
	if r == nil {
		return ErrEmpty
	}
	return r.Append(smp)
}

// Records returns every record in creation order, the meta-record included.
func (s *Store) Records() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Record(nil), s.records...)
}

// Len returns the number of records, the meta-record included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Seal seals every record.
func (s *Store) Seal() {
	for _, r := range s.Records() {
		r.Seal()
	}
}

// OnFlush registers a callback run whenever a record closes a cycle.
func (s *Store) OnFlush(callback func(*Record)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

func (s *Store) notify(r *Record) {
	s.cbMu.RLock()
	callbacks := make([]func(*Record), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(r)
	}
}
