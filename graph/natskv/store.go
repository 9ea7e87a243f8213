// Package natskv stores the property graph in NATS JetStream key-value buckets.
// NATS has no vector index, so similarity search scans the entity bucket.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/kbqa/graph"
)

// Bucket names.
const (
	BucketChunks    = "KBQA_CHUNKS"
	BucketEntities  = "KBQA_ENTITIES"
	BucketRelations = "KBQA_RELATIONS"
)

// Store is a graph.Store on three KV buckets.
type Store struct {
	js        jetstream.JetStream
	chunks    jetstream.KeyValue
	entities  jetstream.KeyValue
	relations jetstream.KeyValue
	closer    func()
	logger    *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// NewStore opens or creates the buckets on js.
func NewStore(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chunks, err := getOrCreateBucket(ctx, js, BucketChunks)
	if err != nil {
		return nil, fmt.Errorf("create chunks bucket: %w", err)
	}
	entities, err := getOrCreateBucket(ctx, js, BucketEntities)
	if err != nil {
		return nil, fmt.Errorf("create entities bucket: %w", err)
	}
	relations, err := getOrCreateBucket(ctx, js, BucketRelations)
	if err != nil {
		return nil, fmt.Errorf("create relations bucket: %w", err)
	}

	return &Store{
		js:        js,
		chunks:    chunks,
		entities:  entities,
		relations: relations,
		logger:    logger,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("kbqa %s", strings.ToLower(strings.TrimPrefix(name, "KBQA_"))),
		History:     1,
	})
}

// key encodes an arbitrary id into the KV key alphabet.
func key(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Ping checks the JetStream account.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("jetstream account info: %w", err)
	}
	return nil
}

// Count counts keys in each bucket. MENTIONS edges are not counted as relations.
func (s *Store) Count(ctx context.Context) (graph.Stats, error) {
	var stats graph.Stats

	chunkKeys, err := keys(ctx, s.chunks)
	if err != nil {
		return stats, fmt.Errorf("count chunks: %w", err)
	}
	entityKeys, err := keys(ctx, s.entities)
	if err != nil {
		return stats, fmt.Errorf("count entities: %w", err)
	}
	relations, err := s.allRelations(ctx)
	if err != nil {
		return stats, err
	}

	stats.Chunks = len(chunkKeys)
	stats.Entities = len(entityKeys)
	for _, r := range relations {
		if r.Label != graph.RelationMentions {
			stats.Relations++
		}
	}
	return stats, nil
}

// UpsertChunks puts chunks by id.
func (s *Store) UpsertChunks(ctx context.Context, chunks []graph.ChunkNode) error {
	for _, c := range chunks {
		if err := put(ctx, s.chunks, c.ID, c); err != nil {
			return fmt.Errorf("store chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// UpsertEntities puts entities by name, keeping a stored embedding when the
// new entity has none.
func (s *Store) UpsertEntities(ctx context.Context, entities []graph.EntityNode) error {
	for _, e := range entities {
		if len(e.Embedding) == 0 {
			var old graph.EntityNode
			found, err := get(ctx, s.entities, e.Name, &old)
			if err != nil {
				return fmt.Errorf("load entity %s: %w", e.Name, err)
			}
			if found {
				e.Embedding = old.Embedding
			}
		}
		if err := put(ctx, s.entities, e.Name, e); err != nil {
			return fmt.Errorf("store entity %s: %w", e.Name, err)
		}
	}
	return nil
}

// UpsertRelations puts relations by key after checking both endpoints exist.
func (s *Store) UpsertRelations(ctx context.Context, relations []graph.Relation) error {
	for _, r := range relations {
		for _, id := range []string{r.SourceID, r.TargetID} {
			ok, err := s.exists(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("relation %s: %w: %s", r.Key(), graph.ErrNotFound, id)
			}
		}
		if err := put(ctx, s.relations, r.Key(), r); err != nil {
			return fmt.Errorf("store relation %s: %w", r.Key(), err)
		}
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	for _, kv := range []jetstream.KeyValue{s.entities, s.chunks} {
		_, err := kv.Get(ctx, key(id))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, fmt.Errorf("lookup %s: %w", id, err)
		}
	}
	return false, nil
}

// VectorQuery scans every entity and ranks by cosine similarity.
func (s *Store) VectorQuery(ctx context.Context, embedding []float32, topK int) ([]graph.ScoredNode, error) {
	entities, err := s.allEntities(ctx)
	if err != nil {
		return nil, err
	}
	return graph.RankByCosine(entities, embedding, topK), nil
}

// EntitiesByName scans entities for case-insensitive name matches.
func (s *Store) EntitiesByName(ctx context.Context, names []string) ([]graph.EntityNode, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[graph.NormalizeName(n)] = true
	}

	entities, err := s.allEntities(ctx)
	if err != nil {
		return nil, err
	}
	var out []graph.EntityNode
	for _, e := range entities {
		if want[graph.NormalizeName(e.Name)] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Triplets loads all relations and walks them from names.
func (s *Store) Triplets(ctx context.Context, names []string, depth, limit int) ([]graph.Triplet, error) {
	entities, err := s.allEntities(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]graph.EntityNode, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}

	relations, err := s.allRelations(ctx)
	if err != nil {
		return nil, err
	}

	isEntity := func(name string) bool {
		_, ok := byName[name]
		return ok
	}
	walked := graph.Walk(relations, isEntity, names, depth, limit)
	out := make([]graph.Triplet, len(walked))
	for i, r := range walked {
		out[i] = graph.Triplet{Subject: byName[r.SourceID], Relation: r, Object: byName[r.TargetID]}
	}
	return out, nil
}

// SourceChunks gets chunks by id, in ids order.
func (s *Store) SourceChunks(ctx context.Context, ids []string) ([]graph.ChunkNode, error) {
	var out []graph.ChunkNode
	for _, id := range ids {
		var c graph.ChunkNode
		found, err := get(ctx, s.chunks, id, &c)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", id, err)
		}
		if found {
			out = append(out, c)
		}
	}
	return out, nil
}

// Close releases the connection when the store owns it.
func (s *Store) Close(context.Context) error {
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
	return nil
}

func (s *Store) allEntities(ctx context.Context) ([]graph.EntityNode, error) {
	var out []graph.EntityNode
	err := scan(ctx, s.entities, func(data []byte) error {
		var e graph.EntityNode
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) allRelations(ctx context.Context) ([]graph.Relation, error) {
	var out []graph.Relation
	err := scan(ctx, s.relations, func(data []byte) error {
		var r graph.Relation
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan relations: %w", err)
	}
	return out, nil
}

func put(ctx context.Context, kv jetstream.KeyValue, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = kv.Put(ctx, key(id), data)
	return err
}

func get(ctx context.Context, kv jetstream.KeyValue, id string, v any) (bool, error) {
	entry, err := kv.Get(ctx, key(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	return true, nil
}

func keys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	ks, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return ks, err
}

// scan calls fn with the value of every key. Keys deleted during the scan
// are skipped.
func scan(ctx context.Context, kv jetstream.KeyValue, fn func(data []byte) error) error {
	ks, err := keys(ctx, kv)
	if err != nil {
		return err
	}
	for _, k := range ks {
		entry, err := kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(entry.Value()); err != nil {
			return fmt.Errorf("key %s: %w", k, err)
		}
	}
	return nil
}
