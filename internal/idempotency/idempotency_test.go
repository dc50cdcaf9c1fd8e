package idempotency

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidKeys(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		key := Generate()
		require.True(t, Validate(key), "generated key %q failed validation", key)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %q", key)
		seen[key] = struct{}{}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"lowercase v4", "3f2b8c1e-9a4d-4e7f-8b21-6c5d4e3f2a10", true},
		{"uppercase v4", "3F2B8C1E-9A4D-4E7F-B821-6C5D4E3F2A10", true},
		{"variant a", "3f2b8c1e-9a4d-4e7f-a821-6c5d4e3f2a10", true},
		{"version 1", "3f2b8c1e-9a4d-1e7f-8b21-6c5d4e3f2a10", false},
		{"bad variant", "3f2b8c1e-9a4d-4e7f-7b21-6c5d4e3f2a10", false},
		{"no dashes", "3f2b8c1e9a4d4e7f8b216c5d4e3f2a10", false},
		{"braces", "{3f2b8c1e-9a4d-4e7f-8b21-6c5d4e3f2a10}", false},
		{"empty", "", false},
		{"garbage", "not-a-key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.key))
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(""))
	assert.NoError(t, Check(Generate()))
	assert.ErrorIs(t, Check("abc"), ErrInvalidKey)
}

func TestSession(t *testing.T) {
	s := NewSession()
	first := s.Key()
	require.True(t, Validate(first))

	// retries of the same attempt see the same key
	assert.Equal(t, first, s.Key())

	renewed := s.Renew()
	assert.NotEqual(t, first, renewed)
	assert.Equal(t, renewed, s.Key())

	custom := strings.ToUpper(Generate())
	require.NoError(t, s.Override(custom))
	assert.Equal(t, custom, s.Key())

	assert.ErrorIs(t, s.Override("nope"), ErrInvalidKey)
	assert.Equal(t, custom, s.Key())

	require.NoError(t, s.Override(""))
	assert.Empty(t, s.Key())
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := NewSession()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Renew()
		}()
		go func() {
			defer wg.Done()
			_ = s.Key()
		}()
	}
	wg.Wait()
	assert.True(t, Validate(s.Key()))
}
