package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(ctx context.Context, s *MemoryStore)
		key     string
		want    string
		wantErr error
	}{
		{
			name: "existing key",
			setup: func(ctx context.Context, s *MemoryStore) {
				require.NoError(t, s.Set(ctx, "quote:AAPL", `{"price":123}`))
			},
			key:  "quote:AAPL",
			want: `{"price":123}`,
		},
		{
			name:    "missing key",
			setup:   func(ctx context.Context, s *MemoryStore) {},
			key:     "quote:MSFT",
			wantErr: ErrKeyNotFound,
		},
		{
			name: "deleted key",
			setup: func(ctx context.Context, s *MemoryStore) {
				require.NoError(t, s.Set(ctx, "quote:NVDA", "x"))
				require.NoError(t, s.Delete(ctx, "quote:NVDA"))
			},
			key:     "quote:NVDA",
			wantErr: ErrKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			tt.setup(ctx, store)

			got, err := store.Get(ctx, tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStore_DeleteMultiple(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, k, "v"))
	}
	require.NoError(t, store.Delete(ctx, "a", "c", "missing"))

	assert.Equal(t, 1, store.Len())
	_, err := store.Get(ctx, "b")
	assert.NoError(t, err)
}
