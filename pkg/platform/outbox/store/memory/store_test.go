package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcregistry/pkg/platform/outbox"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := outbox.NewEntry(outbox.AggregateVerifier, "0x01", "verifier_added", []byte(`{}`), t0)
	second := outbox.NewEntry(outbox.AggregateVerification, "0x02", "verification_registered", []byte(`{}`), t0)
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))

	pending, err := s.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "entries come back in append order")

	limited, err := s.FetchUnprocessed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, s.MarkProcessed(ctx, first.ID, t0.Add(time.Second)))
	assert.Error(t, s.MarkProcessed(ctx, first.ID, t0.Add(time.Second)), "already processed")

	count, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	deleted, err := s.DeleteProcessedBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, s.All(), 1)
}
