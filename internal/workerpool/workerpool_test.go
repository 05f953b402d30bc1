package workerpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	results := Run(context.Background(), items, 3, 2, func(_ context.Context, v int) (int, error) {
		return v * v, nil
	})
	require.Len(t, results, len(items))
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, items[i]*items[i], r.Value)
	}
}

func TestRunEmpty(t *testing.T) {
	results := Run(context.Background(), []int{}, 4, 4, func(_ context.Context, v int) (int, error) { return v, nil })
	require.Empty(t, results)
}

func TestRunCollectsPerItemErrors(t *testing.T) {
	items := []int{1, 2, 3}
	results := Run(context.Background(), items, 2, 1, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, errBoom
		}
		return v, nil
	})
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, errBoom)
	require.NoError(t, results[2].Err)
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestSafeCPUCount(t *testing.T) {
	require.Equal(t, 4, SafeCPUCount(4))
	require.GreaterOrEqual(t, SafeCPUCount(0), 1)
}

func TestBatchSize(t *testing.T) {
	require.Equal(t, 1, BatchSize(5, 10))
	require.Equal(t, 10, BatchSize(1000, 10))
}
