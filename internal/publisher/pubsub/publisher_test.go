package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRejectsUnmappedTopic(t *testing.T) {
	p := New(nil, map[string]string{"channel.scored": "ranker-scored"})
	_, err := p.Publish(context.Background(), "channel.enriched", map[string]string{})
	require.ErrorContains(t, err, "no pubsub topic configured")
}

func TestPublishRequiresClient(t *testing.T) {
	p := New(nil, map[string]string{"channel.scored": "ranker-scored"})
	_, err := p.Publish(context.Background(), "channel.scored", map[string]string{})
	require.ErrorContains(t, err, "client is not configured")
	require.NoError(t, p.Close())
}
