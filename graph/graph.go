// Package graph defines the property graph the index is stored in: chunk
// nodes holding source text, entity nodes extracted from them, and labelled
// relations between entities. Store implementations live in subpackages.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Node labels and relation types shared by every store.
const (
	LabelNode   = "__Node__"
	LabelEntity = "__Entity__"
	LabelChunk  = "Chunk"

	// RelationMentions links a chunk to each entity extracted from it.
	RelationMentions = "MENTIONS"

	// DefaultEntityLabel is the label of entities extracted without a type.
	DefaultEntityLabel = "entity"
)

// ErrNotFound is returned when a node does not exist.
var ErrNotFound = errors.New("node not found")

// EntityNode is a named entity. The name is its identity.
type EntityNode struct {
	Name       string            `json:"name"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties,omitempty"`
	Embedding  []float32         `json:"embedding,omitempty"`
}

// ChunkNode holds one chunk of source text and its metadata.
type ChunkNode struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Properties map[string]string `json:"properties,omitempty"`
	Embedding  []float32         `json:"embedding,omitempty"`
}

// Relation is a directed, labelled edge. SourceID and TargetID are entity
// names or chunk ids. ChunkID names the chunk the relation was extracted from.
type Relation struct {
	Label      string            `json:"label"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	ChunkID    string            `json:"chunk_id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Key identifies a relation by its endpoints and label.
func (r Relation) Key() string {
	return r.SourceID + "|" + r.Label + "|" + r.TargetID
}

// Triplet is a relation with both entity endpoints resolved.
type Triplet struct {
	Subject  EntityNode
	Relation Relation
	Object   EntityNode
}

// String renders the triplet as "subject -> relation -> object".
func (t Triplet) String() string {
	return fmt.Sprintf("%s -> %s -> %s", t.Subject.Name, t.Relation.Label, t.Object.Name)
}

// ScoredNode is an entity with its similarity to a query.
type ScoredNode struct {
	Entity EntityNode
	Score  float64
}

// Stats counts the contents of a store.
type Stats struct {
	Chunks    int
	Entities  int
	Relations int
}

// Empty reports whether the store holds no nodes.
func (s Stats) Empty() bool {
	return s.Chunks == 0 && s.Entities == 0
}

// Store persists and queries the property graph.
type Store interface {
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Count returns node and relation counts.
	Count(ctx context.Context) (Stats, error)

	UpsertChunks(ctx context.Context, chunks []ChunkNode) error
	UpsertEntities(ctx context.Context, entities []EntityNode) error

	// UpsertRelations stores relations. Both endpoints must already exist.
	UpsertRelations(ctx context.Context, relations []Relation) error

	// VectorQuery returns up to topK entities ranked by cosine similarity,
	// highest first.
	VectorQuery(ctx context.Context, embedding []float32, topK int) ([]ScoredNode, error)

	// EntitiesByName returns the entities whose name matches one of names,
	// ignoring case.
	EntitiesByName(ctx context.Context, names []string) ([]EntityNode, error)

	// Triplets returns up to limit entity-to-entity relations reachable from
	// the named entities within depth hops. MENTIONS edges are not followed.
	Triplets(ctx context.Context, names []string, depth, limit int) ([]Triplet, error)

	// SourceChunks returns the chunks with the given ids. Unknown ids are skipped.
	SourceChunks(ctx context.Context, ids []string) ([]ChunkNode, error)

	Close(ctx context.Context) error
}

// NormalizeName folds an entity name for case-insensitive lookup.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
