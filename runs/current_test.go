package runs

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunID_String(t *testing.T) {
	assert.Equal(t, "RunId(42)", RunID(42).String())
}

func TestRunIDSequence_StartsAtOneAndIsUnique(t *testing.T) {
	seq := NewRunIDSequence()
	assert.Equal(t, RunID(1), seq.Next())
	assert.Equal(t, RunID(2), seq.Next())

	const goroutines, perGoroutine = 8, 100
	var mu sync.Mutex
	seen := make(map[RunID]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := seq.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestCurrentRun_NestedTestsShareTheRun(t *testing.T) {
	current := NewCurrentRun(NewRunIDSequence())

	ctx, started := current.EnterTest(context.Background())
	require.True(t, started)
	outer, err := current.RunID(ctx)
	require.NoError(t, err)

	nested, started := current.EnterTest(ctx)
	assert.False(t, started)
	inner, err := current.RunID(nested)
	require.NoError(t, err)
	assert.Equal(t, outer, inner)

	ended, err := current.ExitTest(nested)
	require.NoError(t, err)
	assert.False(t, ended, "the outer test is still running")
	stillOuter, err := current.RunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, outer, stillOuter)

	ended, err = current.ExitTest(ctx)
	require.NoError(t, err)
	assert.True(t, ended)
}

func TestCurrentRun_NewRunAfterExit(t *testing.T) {
	current := NewCurrentRun(NewRunIDSequence())

	first, _ := current.EnterTest(context.Background())
	firstID, err := current.RunID(first)
	require.NoError(t, err)
	_, err = current.ExitTest(first)
	require.NoError(t, err)

	_, err = current.RunID(first)
	assert.True(t, errors.Is(err, ErrNoActiveRun))

	second, started := current.EnterTest(first)
	assert.True(t, started, "a finished run is not resumed")
	secondID, err := current.RunID(second)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, secondID)
}

func TestCurrentRun_InheritedByGoroutines(t *testing.T) {
	current := NewCurrentRun(NewRunIDSequence())
	ctx, _ := current.EnterTest(context.Background())
	parent, err := current.RunID(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]RunID, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int, ctx context.Context) {
			defer wg.Done()
			child, started := current.EnterTest(ctx)
			assert.False(t, started)
			ids[i], _ = current.RunID(child)
			_, err := current.ExitTest(child)
			assert.NoError(t, err)
		}(i, ctx)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, parent, id)
	}
	ended, err := current.ExitTest(ctx)
	require.NoError(t, err)
	assert.True(t, ended)
}

func TestCurrentRun_UnbalancedExit(t *testing.T) {
	current := NewCurrentRun(NewRunIDSequence())

	_, err := current.ExitTest(context.Background())
	assert.True(t, errors.Is(err, ErrUnbalancedExit))

	ctx, _ := current.EnterTest(context.Background())
	_, err = current.ExitTest(ctx)
	require.NoError(t, err)
	_, err = current.ExitTest(ctx)
	assert.True(t, errors.Is(err, ErrUnbalancedExit), "nesting never goes below zero")
}

func TestCurrentRun_NoActiveRun(t *testing.T) {
	_, err := NewCurrentRun(NewRunIDSequence()).RunID(context.Background())
	assert.True(t, errors.Is(err, ErrNoActiveRun))
}
