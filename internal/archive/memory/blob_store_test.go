package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	store := NewBlobStore()
	payload := []byte(`{"id":"1"}`)
	uri, err := store.PutObject(context.Background(), "a/b.json", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://a/b.json", uri)

	payload[0] = 'X'
	got, ok := store.Get("a/b.json")
	require.True(t, ok)
	require.Equal(t, `{"id":"1"}`, string(got))
	require.Equal(t, 1, store.Len())

	_, err = store.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
