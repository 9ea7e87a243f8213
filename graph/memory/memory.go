// Package memory is an in-process graph.Store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/c360studio/kbqa/graph"
)

// Store keeps the graph in maps guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	chunks    map[string]graph.ChunkNode
	entities  map[string]graph.EntityNode
	relations map[string]graph.Relation

	// PingErr, when set, is returned by Ping.
	PingErr error
}

var _ graph.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		chunks:    make(map[string]graph.ChunkNode),
		entities:  make(map[string]graph.EntityNode),
		relations: make(map[string]graph.Relation),
	}
}

// Ping returns PingErr.
func (s *Store) Ping(context.Context) error {
	return s.PingErr
}

// Count returns the number of stored chunks, entities and entity relations.
func (s *Store) Count(context.Context) (graph.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := graph.Stats{Chunks: len(s.chunks), Entities: len(s.entities)}
	for _, r := range s.relations {
		if r.Label != graph.RelationMentions {
			stats.Relations++
		}
	}
	return stats, nil
}

// UpsertChunks stores chunks by id.
func (s *Store) UpsertChunks(_ context.Context, chunks []graph.ChunkNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		c.Properties = maps.Clone(c.Properties)
		s.chunks[c.ID] = c
	}
	return nil
}

// UpsertEntities stores entities by name. An upsert without an embedding
// keeps the stored one.
func (s *Store) UpsertEntities(_ context.Context, entities []graph.EntityNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		if old, ok := s.entities[e.Name]; ok && len(e.Embedding) == 0 {
			e.Embedding = old.Embedding
		}
		e.Properties = maps.Clone(e.Properties)
		s.entities[e.Name] = e
	}
	return nil
}

// UpsertRelations stores relations by key.
func (s *Store) UpsertRelations(_ context.Context, relations []graph.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range relations {
		if !s.exists(r.SourceID) || !s.exists(r.TargetID) {
			return fmt.Errorf("relation %s: %w", r.Key(), graph.ErrNotFound)
		}
		s.relations[r.Key()] = r
	}
	return nil
}

func (s *Store) exists(id string) bool {
	if _, ok := s.entities[id]; ok {
		return true
	}
	_, ok := s.chunks[id]
	return ok
}

// VectorQuery ranks all entities by cosine similarity.
func (s *Store) VectorQuery(_ context.Context, embedding []float32, topK int) ([]graph.ScoredNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]graph.EntityNode, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	return graph.RankByCosine(entities, embedding, topK), nil
}

// EntitiesByName matches names case-insensitively, sorted by name.
func (s *Store) EntitiesByName(_ context.Context, names []string) ([]graph.EntityNode, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[graph.NormalizeName(n)] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.EntityNode
	for name, e := range s.entities {
		if want[graph.NormalizeName(name)] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Triplets walks entity relations from names.
func (s *Store) Triplets(_ context.Context, names []string, depth, limit int) ([]graph.Triplet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	relations := make([]graph.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		relations = append(relations, r)
	}
	isEntity := func(name string) bool {
		_, ok := s.entities[name]
		return ok
	}

	walked := graph.Walk(relations, isEntity, names, depth, limit)
	out := make([]graph.Triplet, len(walked))
	for i, r := range walked {
		out[i] = graph.Triplet{Subject: s.entities[r.SourceID], Relation: r, Object: s.entities[r.TargetID]}
	}
	return out, nil
}

// SourceChunks returns chunks in ids order.
func (s *Store) SourceChunks(_ context.Context, ids []string) ([]graph.ChunkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.ChunkNode
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}
