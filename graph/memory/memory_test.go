package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/kbqa/graph"
	"github.com/c360studio/kbqa/graph/graphtest"
)

func TestStore(t *testing.T) {
	graphtest.Run(t, func(*testing.T) graph.Store { return New() })
}

func TestStore_RelationNeedsEndpoints(t *testing.T) {
	s := New()
	err := s.UpsertRelations(context.Background(), []graph.Relation{{Label: "x", SourceID: "a", TargetID: "b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestStore_PingErr(t *testing.T) {
	s := New()
	s.PingErr = errors.New("down")
	assert.EqualError(t, s.Ping(context.Background()), "down")
}
