package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQuota_WithinLimit tests normal operation within quota.
func TestQuota_WithinLimit(t *testing.T) {
	q := NewQuota("entity 1", 10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, q.Check(), "firing %d should be allowed", i+1)
	}

	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.Limit())
}

// TestQuota_ExceedsLimit tests the quota exceeded error.
func TestQuota_ExceedsLimit(t *testing.T) {
	q := NewQuota("entity 7", 5)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Check())
	}

	err := q.Check()
	require.Error(t, err)
	assert.True(t, IsFiringsExceededError(err))

	var fe *FiringsExceededError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "entity 7", fe.Owner)
	assert.Equal(t, 6, fe.Firings)
	assert.Equal(t, 5, fe.Limit)
	assert.Equal(t, "entity 7 exceeded firing quota: 6 firings > 5 limit", err.Error())
}

func TestQuota_ZeroLimitDisables(t *testing.T) {
	q := NewQuota("entity 1", 0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Check())
	}
	assert.Equal(t, 1000, q.Current())
}

func TestIsFiringsExceededError_Wrapped(t *testing.T) {
	err := fmt.Errorf("tick 3: %w", &FiringsExceededError{Owner: "entity 2", Firings: 2, Limit: 1})
	assert.True(t, IsFiringsExceededError(err))
	assert.False(t, IsFiringsExceededError(errors.New("other")))
	assert.False(t, IsFiringsExceededError(nil))
}
