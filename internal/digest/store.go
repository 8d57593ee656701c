package digest

import (
	"sync"

	"github.com/drumstick90/authordigest/internal/domain"
)

// Store holds the works and extracts for the currently loaded subject.
// It is safe for concurrent use. Storing a new batch of works supersedes
// the previous subject wholesale and invalidates the in-memory extracts.
type Store struct {
	mu          sync.Mutex
	works       []domain.WorkItem
	subjectID   string
	subjectName string
	extracts    domain.Session
	inProgress  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// StoreWorks replaces the loaded subject. Cached in-memory extracts are
// cleared because they describe the previous batch.
func (s *Store) StoreWorks(works []domain.WorkItem, subjectName, subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works = works
	s.subjectName = subjectName
	s.subjectID = subjectID
	s.extracts = nil
}

// Works returns the stored works and the subject's name.
func (s *Store) Works() ([]domain.WorkItem, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.works, s.subjectName
}

// Subject returns the stored subject's ID and name.
func (s *Store) Subject() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjectID, s.subjectName
}

// Extracts returns the in-memory session, or nil if none is cached.
func (s *Store) Extracts() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extracts
}

// SetExtracts caches a completed session in memory.
func (s *Store) SetExtracts(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracts = session
}

// TryBeginExtraction claims the single extraction slot. It returns false
// when a run is already in flight.
func (s *Store) TryBeginExtraction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	return true
}

// EndExtraction releases the extraction slot.
func (s *Store) EndExtraction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
}

// ExtractionInProgress reports whether a run is in flight.
func (s *Store) ExtractionInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Clear drops the loaded subject and its extracts. An in-flight run keeps
// its slot; only the data is cleared.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.works = nil
	s.subjectID = ""
	s.subjectName = ""
	s.extracts = nil
}
