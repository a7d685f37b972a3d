package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/account-security/pkg/circuitbreaker"
	"github.com/jwalitptl/account-security/pkg/messaging"
)

func setupTestBroker(t *testing.T) (*miniredis.Miniredis, messaging.Broker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	broker := NewRedisBroker(client, zerolog.Nop())
	t.Cleanup(func() { _ = broker.Close() })
	return mr, broker
}

func TestPublishSubscribe(t *testing.T) {
	_, broker := setupTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := broker.Subscribe(ctx, "security.events")
	require.NoError(t, err)

	pub := messaging.NewChannelPublisher(broker, "security.events")
	require.NoError(t, pub.Publish(ctx, "account_lock", map[string]string{"account_id": "abc"}))

	select {
	case raw := <-msgs:
		var msg struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "account_lock", msg.Type)
		assert.Equal(t, "abc", msg.Payload["account_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishOpensBreakerWhenRedisIsDown(t *testing.T) {
	mr, broker := setupTestBroker(t)
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.Error(t, broker.Publish(ctx, "security.events", "x"))
	}
	assert.ErrorIs(t, broker.Publish(ctx, "security.events", "x"), circuitbreaker.ErrOpen)
}
