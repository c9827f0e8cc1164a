package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	directorymodels "vcregistry/internal/directory/models"
	"vcregistry/internal/ledger"
	"vcregistry/pkg/domain"
	"vcregistry/pkg/platform/outbox"
	outboxmemory "vcregistry/pkg/platform/outbox/store/memory"
	"vcregistry/pkg/platform/sentinel"
)

func addVerifier(ctx context.Context, tx ledger.Tx, account byte) error {
	label, _ := domain.ParseLabel("v")
	v := &directorymodels.Verifier{Account: domain.Address{account}, Name: label, SigningKey: domain.Address{account, 0xff}}
	if err := tx.Verifiers().Save(ctx, v); err != nil {
		return err
	}
	n, err := tx.Counters().Get(ctx, ledger.CounterVerifiers)
	if err != nil {
		return err
	}
	if err := tx.Counters().Set(ctx, ledger.CounterVerifiers, n+1); err != nil {
		return err
	}
	return tx.Events().Append(ctx, outbox.NewEntry(outbox.AggregateVerifier, v.Account.String(), "verifier_added", nil, time.Now()))
}

func TestUpdateCommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	events := outboxmemory.New()
	l := New(events)

	require.NoError(t, l.Update(ctx, func(tx ledger.Tx) error { return addVerifier(ctx, tx, 1) }))

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.Verifiers().FindByAccount(ctx, domain.Address{1})
		require.NoError(t, err)
		n, err := tx.Counters().Get(ctx, ledger.CounterVerifiers)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)
		return nil
	}))
	assert.Len(t, events.All(), 1)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	events := outboxmemory.New()
	l := New(events)
	boom := errors.New("boom")

	err := l.Update(ctx, func(tx ledger.Tx) error {
		if err := addVerifier(ctx, tx, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.Verifiers().FindByAccount(ctx, domain.Address{1})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		n, _ := tx.Counters().Get(ctx, ledger.CounterVerifiers)
		assert.Zero(t, n)
		return nil
	}))
	assert.Empty(t, events.All(), "events of a rolled back update are never published")
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	l := New(outboxmemory.New())

	err := l.View(ctx, func(tx ledger.Tx) error { return addVerifier(ctx, tx, 1) })
	assert.ErrorIs(t, err, ledger.ErrReadOnly)

	err = l.View(ctx, func(tx ledger.Tx) error {
		return tx.Counters().Set(ctx, ledger.CounterVerifications, 3)
	})
	assert.ErrorIs(t, err, ledger.ErrReadOnly)
}

func TestUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	l := New(outboxmemory.New())

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(account byte) {
			defer wg.Done()
			assert.NoError(t, l.Update(ctx, func(tx ledger.Tx) error { return addVerifier(ctx, tx, account) }))
		}(byte(i))
	}
	wg.Wait()

	require.NoError(t, l.View(ctx, func(tx ledger.Tx) error {
		n, _ := tx.Counters().Get(ctx, ledger.CounterVerifiers)
		assert.Equal(t, uint64(50), n, "no lost counter increments")
		return nil
	}))
}

func TestCancelledContextDoesNotRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New(outboxmemory.New())

	called := false
	err := l.Update(ctx, func(ledger.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
