package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptodash/internal/domain"
)

func TestSessionCache(t *testing.T) {
	c := NewSessionCache(2, time.Hour)

	_, err := c.Term("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetTerm("a", "btc"))
	require.NoError(t, c.SetTerm("b", ""))

	term, err := c.Term("a")
	require.NoError(t, err)
	assert.Equal(t, "btc", term)

	term, err = c.Term("b")
	require.NoError(t, err)
	assert.Equal(t, "", term)
	assert.Equal(t, 2, c.Len())

	// "a" is least recently used after reading "b"
	require.NoError(t, c.SetTerm("c", "eth"))
	_, err = c.Term("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionCacheExpiry(t *testing.T) {
	c := NewSessionCache(10, 20*time.Millisecond)
	require.NoError(t, c.SetTerm("a", "sol"))

	time.Sleep(50 * time.Millisecond)
	_, err := c.Term("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
