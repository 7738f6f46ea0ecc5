package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "equipment.created", map[string]string{"id": "1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	require.Len(t, pub.Messages(), 2)
	created := pub.Messages("equipment.created")
	require.Len(t, created, 1)
	require.Equal(t, "memory-1", created[0].ID)

	msgs := pub.Messages()
	msgs[0].Topic = "modified"
	require.Equal(t, "equipment.created", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	pub := New()
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "equipment.created", nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "equipment.created", nil)
	require.NoError(t, err)
}
