// Package graphtest holds behaviour tests shared by graph.Store implementations.
package graphtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/kbqa/graph"
)

// Seed writes a small graph: two chunks and the entities and relations
// extracted from them.
//
//	chunk-1: Disk -fills-> Capture, Capture -writes to-> Storage
//	chunk-2: License -limits-> Capture
func Seed(t *testing.T, s graph.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []graph.ChunkNode{
		{ID: "chunk-1", Text: "When the disk fills, capture stops writing to storage.", Properties: map[string]string{"source": "S10001", "created_at": "08/15/2023"}, Embedding: []float32{1, 0, 0}},
		{ID: "chunk-2", Text: "An expired license limits capture.", Properties: map[string]string{"source": "S10002", "created_at": "09/01/2023"}, Embedding: []float32{0, 1, 0}},
	}))
	require.NoError(t, s.UpsertEntities(ctx, []graph.EntityNode{
		{Name: "Disk", Label: graph.DefaultEntityLabel, Embedding: []float32{1, 0, 0}},
		{Name: "Capture", Label: graph.DefaultEntityLabel, Embedding: []float32{0.7, 0.7, 0}},
		{Name: "Storage", Label: graph.DefaultEntityLabel, Embedding: []float32{0, 0, 1}},
		{Name: "License", Label: graph.DefaultEntityLabel, Embedding: []float32{0, 1, 0}},
	}))
	require.NoError(t, s.UpsertRelations(ctx, []graph.Relation{
		{Label: "fills", SourceID: "Disk", TargetID: "Capture", ChunkID: "chunk-1"},
		{Label: "writes to", SourceID: "Capture", TargetID: "Storage", ChunkID: "chunk-1"},
		{Label: "limits", SourceID: "License", TargetID: "Capture", ChunkID: "chunk-2"},
		{Label: graph.RelationMentions, SourceID: "chunk-1", TargetID: "Disk"},
		{Label: graph.RelationMentions, SourceID: "chunk-1", TargetID: "Capture"},
		{Label: graph.RelationMentions, SourceID: "chunk-1", TargetID: "Storage"},
		{Label: graph.RelationMentions, SourceID: "chunk-2", TargetID: "License"},
		{Label: graph.RelationMentions, SourceID: "chunk-2", TargetID: "Capture"},
	}))
}

// Run exercises a store created by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) graph.Store) {
	ctx := context.Background()

	t.Run("empty count", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(ctx))
		stats, err := s.Count(ctx)
		require.NoError(t, err)
		assert.True(t, stats.Empty())
	})

	t.Run("count", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		stats, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, graph.Stats{Chunks: 2, Entities: 4, Relations: 3}, stats)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		Seed(t, s)
		stats, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, graph.Stats{Chunks: 2, Entities: 4, Relations: 3}, stats)
	})

	t.Run("vector query", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.VectorQuery(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Disk", got[0].Entity.Name)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		assert.Equal(t, "Capture", got[1].Entity.Name)
		assert.Greater(t, got[0].Score, got[1].Score)
	})

	t.Run("entities by name ignores case", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.EntitiesByName(ctx, []string{"disk", "LICENSE", "missing"})
		require.NoError(t, err)
		names := make([]string, len(got))
		for i, e := range got {
			names[i] = e.Name
		}
		assert.ElementsMatch(t, []string{"Disk", "License"}, names)
	})

	t.Run("triplets one hop", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.Triplets(ctx, []string{"Disk"}, 1, 30)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Disk -> fills -> Capture", got[0].String())
		assert.Equal(t, "chunk-1", got[0].Relation.ChunkID)
	})

	t.Run("triplets two hops", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.Triplets(ctx, []string{"Disk"}, 2, 30)
		require.NoError(t, err)
		lines := make([]string, len(got))
		for i, tr := range got {
			lines[i] = tr.String()
		}
		assert.ElementsMatch(t, []string{
			"Disk -> fills -> Capture",
			"Capture -> writes to -> Storage",
			"License -> limits -> Capture",
		}, lines)
	})

	t.Run("triplets limit", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.Triplets(ctx, []string{"Capture"}, 1, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("source chunks", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		got, err := s.SourceChunks(ctx, []string{"chunk-2", "nope", "chunk-1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		ids := []string{got[0].ID, got[1].ID}
		assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, ids)
		for _, c := range got {
			if c.ID == "chunk-1" {
				assert.Equal(t, "S10001", c.Properties["source"])
				assert.Equal(t, "08/15/2023", c.Properties["created_at"])
				assert.Contains(t, c.Text, "disk fills")
			}
		}
	})

	t.Run("entity embedding kept on upsert without one", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		require.NoError(t, s.UpsertEntities(ctx, []graph.EntityNode{{Name: "Disk", Label: graph.DefaultEntityLabel}}))
		got, err := s.VectorQuery(ctx, []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Disk", got[0].Entity.Name)
	})
}
