package taskstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethermail_farm/internal/model"
)

func TestCreateValidation(t *testing.T) {
	s := New()

	_, err := s.Create(nil, 1, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = s.Create([]string{"http://p1"}, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = s.Create([]string{"http://p1"}, 2, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = s.Create([]string{"http://p1"}, 1, -0.5)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	// Nothing should have been registered by the rejected calls.
	id, err := s.Create([]string{"http://p1", "http://p2"}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, s.tasks, 1)

	snap, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, snap.Status)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.InProgress)
}

func TestGetUnknown(t *testing.T) {
	s := New()
	_, err := s.Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatusNeverRegresses(t *testing.T) {
	s := New()
	id, err := s.Create([]string{"http://p1"}, 1, 0)
	require.NoError(t, err)

	s.MarkRunning(id)
	s.MarkCompleted(id)
	// A late MarkRunning must not move a completed task backwards.
	s.MarkRunning(id)

	snap, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, snap.Status)
}

func TestConcurrentRecordingLosesNothing(t *testing.T) {
	s := New()
	proxies := make([]string, 25)
	for i := range proxies {
		proxies[i] = fmt.Sprintf("http://proxy-%d:8080", i)
	}
	id, err := s.Create(proxies, 25, 0)
	require.NoError(t, err)
	s.MarkRunning(id)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.RecordSuccess(id, model.CreatedAccount{
				ID:            fmt.Sprintf("acc-%d", i),
				WalletAddress: fmt.Sprintf("0x%040d", i),
			})
		}(i)
	}
	wg.Wait()
	s.MarkCompleted(id)

	snap, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 25, snap.Completed)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 0, snap.InProgress)

	seen := make(map[string]bool)
	for _, res := range snap.Results {
		assert.False(t, seen[res.ID], "duplicate result id %s", res.ID)
		seen[res.ID] = true
	}
	assert.Len(t, seen, 25)
}

func TestCountersNeverExceedTotal(t *testing.T) {
	s := New()
	id, err := s.Create([]string{"a", "b", "c"}, 3, 0)
	require.NoError(t, err)
	s.MarkRunning(id)

	s.RecordSuccess(id, model.CreatedAccount{ID: "1"})
	s.RecordFailure(id, "nonce fetch failed")

	snap, _ := s.Get(id)
	assert.LessOrEqual(t, snap.Completed+snap.Failed, snap.Total)
	assert.Equal(t, 1, snap.InProgress)

	s.RecordSuccess(id, model.CreatedAccount{ID: "2"})
	s.MarkCompleted(id)

	snap, _ = s.Get(id)
	assert.Equal(t, snap.Total, snap.Completed+snap.Failed)
}

func TestResultsWithheldUntilCompleted(t *testing.T) {
	s := New()
	id, err := s.Create([]string{"a"}, 1, 0)
	require.NoError(t, err)
	s.MarkRunning(id)
	s.RecordSuccess(id, model.CreatedAccount{ID: "1", WalletAddress: "0xabc"})

	snap, _ := s.Get(id)
	assert.Nil(t, snap.Results)

	s.MarkCompleted(id)
	snap, _ = s.Get(id)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "0xabc", snap.Results[0].WalletAddress)
}
