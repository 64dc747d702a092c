// Package session holds generated datasets for the server between requests.
// Each dataset has its own lock so detection, which rewrites anomaly flags,
// never interleaves with readers of the same dataset.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/metrics"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 32

// ErrNotFound is returned for unknown or evicted dataset IDs.
var ErrNotFound = errors.New("dataset not found")

// Entry is a held dataset with the outcome of its last detection.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Dataset   *models.Dataset
	// Detection is nil until detection has run on Dataset.
	Detection *ml.Detection
}

type slot struct {
	mu    sync.RWMutex
	entry Entry
}

// Store is a bounded set of datasets. When full, Put evicts the oldest entry.
// Lookups use Peek so recency never changes and eviction stays first-in first-out.
type Store struct {
	now   func() time.Time
	slots *lru.Cache[string, *slot]
}

// New returns a store holding at most capacity datasets.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for a non-positive size.
	slots, _ := lru.New[string, *slot](capacity)
	return &Store{now: time.Now, slots: slots}
}

// Put takes ownership of ds and returns its new ID.
func (s *Store) Put(ds *models.Dataset) string {
	id := uuid.New().String()
	sl := &slot{entry: Entry{ID: id, CreatedAt: s.now().UTC(), Dataset: ds}}

	if evicted := s.slots.Add(id, sl); evicted {
		metrics.DatasetsEvicted.Inc()
	}
	metrics.DatasetsHeld.Set(float64(s.slots.Len()))
	return id
}

// Get returns a copy of the dataset so callers can read it without holding a lock.
func (s *Store) Get(id string) (*models.Dataset, error) {
	var out *models.Dataset
	err := s.WithRead(id, func(e *Entry) error {
		out = e.Dataset.Clone()
		return nil
	})
	return out, err
}

// WithRead runs fn while holding the entry's read lock. fn must not modify e.
func (s *Store) WithRead(id string, fn func(e *Entry) error) error {
	sl, ok := s.slots.Peek(id)
	if !ok {
		return ErrNotFound
	}
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return fn(&sl.entry)
}

// WithWrite runs fn while holding the entry's write lock.
func (s *Store) WithWrite(id string, fn func(e *Entry) error) error {
	sl, ok := s.slots.Peek(id)
	if !ok {
		return ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(&sl.entry)
}

// Delete drops a dataset. It reports whether the ID was held.
func (s *Store) Delete(id string) bool {
	ok := s.slots.Remove(id)
	metrics.DatasetsHeld.Set(float64(s.slots.Len()))
	return ok
}

// Len returns the number of held datasets.
func (s *Store) Len() int {
	return s.slots.Len()
}

// IDs returns held dataset IDs, oldest first.
func (s *Store) IDs() []string {
	return s.slots.Keys()
}
