package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "movie-runs")
	require.NoError(t, err)
	return srv, topic
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	pub := New(topic, map[string]string{"source": "moviecrawler"})
	defer pub.Close()

	payload := map[string]any{"run_id": "run-1", "rows_written": 3}
	id, err := pub.Publish(context.Background(), payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "moviecrawler", msgs[0].Attributes["source"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.EqualValues(t, 3, got["rows_written"])
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	_, topic := newTestTopic(t)
	pub := New(topic, nil)
	defer pub.Close()

	_, err := pub.Publish(context.Background(), make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Publish(context.Background(), "x")
	require.Error(t, err)
}
