package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/ratelimit/models"
	"hearth/internal/ratelimit/store/counter"
)

type fakePruningStore struct {
	pruned int
	err    error
	calls  int
}

func (f *fakePruningStore) Prune(context.Context, time.Time) (int, error) {
	f.calls++
	return f.pruned, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceReportsPrunedCount(t *testing.T) {
	store := &fakePruningStore{pruned: 7}
	service := New(store, WithLogger(discardLogger()))

	assert.Equal(t, 7, service.RunOnce(context.Background()))
	assert.Equal(t, 1, store.calls)
}

func TestRunOnceSwallowsStoreErrors(t *testing.T) {
	store := &fakePruningStore{err: errors.New("connection refused")}
	service := New(store, WithLogger(discardLogger()))

	assert.Equal(t, 0, service.RunOnce(context.Background()))
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store := &fakePruningStore{}
	service := New(store, WithLogger(discardLogger()), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Start(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunOncePrunesRealStore(t *testing.T) {
	store := counter.NewInMemoryStore()
	key := models.CounterKey{
		SubjectID:   "user-1",
		Endpoint:    "/api/bills",
		WindowStart: time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Hour),
	}
	_, err := store.Increment(context.Background(), key, time.Hour)
	require.NoError(t, err)

	service := New(store, WithLogger(discardLogger()))
	assert.Equal(t, 1, service.RunOnce(context.Background()))
	assert.Equal(t, 0, store.Len())
}
