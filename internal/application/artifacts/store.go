package artifacts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conduitci/conduit/pkg/domain"
)

type key struct {
	stageID string
	name    string
}

// Store is the run-scoped, write-once mapping from (stage, artifact name)
// to artifact reference. Writes are single-writer per key (the producing
// stage); completed entries are safe for concurrent reads.
type Store struct {
	mu   sync.RWMutex
	refs map[key]domain.ArtifactRef
}

// NewStore creates an empty artifact store for one pipeline run.
func NewStore() *Store {
	return &Store{refs: make(map[key]domain.ArtifactRef)}
}

// Put records an artifact reference produced by a stage. The key is
// write-once: a second Put fails with ErrDuplicateArtifact.
func (s *Store) Put(stageID, name, reference string) (domain.ArtifactRef, error) {
	if stageID == "" || name == "" {
		return domain.ArtifactRef{}, fmt.Errorf("artifact key requires stage ID and name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{stageID: stageID, name: name}
	if _, exists := s.refs[k]; exists {
		return domain.ArtifactRef{}, fmt.Errorf("%w: %s/%s", domain.ErrDuplicateArtifact, stageID, name)
	}

	ref := domain.ArtifactRef{
		Name:       name,
		Reference:  reference,
		ProducedBy: stageID,
		CreatedAt:  time.Now(),
	}
	s.refs[k] = ref
	return ref, nil
}

// Get returns the artifact reference recorded under (stageID, name).
func (s *Store) Get(stageID, name string) (domain.ArtifactRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[key{stageID: stageID, name: name}]
	if !ok {
		return domain.ArtifactRef{}, fmt.Errorf("%w: %s/%s", domain.ErrArtifactNotFound, stageID, name)
	}
	return ref, nil
}

// List returns all recorded artifacts ordered by producing stage and name.
func (s *Store) List() []domain.ArtifactRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ArtifactRef, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProducedBy != out[j].ProducedBy {
			return out[i].ProducedBy < out[j].ProducedBy
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of recorded artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}
