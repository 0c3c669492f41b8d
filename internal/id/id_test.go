package id

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 500

	for range count {
		id, err := Generate("acct")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	id, err := Generate("acct")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "acct-"))
	assert.Len(t, strings.TrimPrefix(id, "acct-"), 21)
}

func TestMustGenerate_Format(t *testing.T) {
	id := MustGenerate("jti")
	assert.True(t, strings.HasPrefix(id, "jti-"))
}

func TestBookIDs(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "swb-1700000000123", BookID(now))
	assert.Equal(t, "swb-366103084195", ItemBookID("366103084195"))
	assert.Equal(t, "swb-1700000000123-4", RowBookID(now, 4))
}

func TestAnonymousUID(t *testing.T) {
	a := AnonymousUID()
	b := AnonymousUID()

	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
