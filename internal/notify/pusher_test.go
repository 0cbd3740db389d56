package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axle-monitor/core/internal/store"
)

func TestRedisPusher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	sub := client.Subscribe(ctx, RecipientChannel("asha@rail.in"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPusher(store.NewRedisStoreFromClient(client, 0))
	require.NoError(t, p.Notify(ctx, "asha@rail.in", Message{Kind: KindWarning, Title: "Hot"}))

	select {
	case msg := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "Hot", got.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	topic   string
	payload []byte
	token   *fakeToken
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.payload = payload.([]byte)
	return f.token
}

func completed(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{done: done, err: err}
}

func TestMQTTPusher(t *testing.T) {
	client := &fakeMQTT{token: completed(nil)}
	p := NewMQTTPusher(client)

	require.NoError(t, p.Notify(context.Background(), "control-room", Message{Title: "Upcoming maintenance"}))
	assert.Equal(t, "axle-monitor/notify/control-room", client.topic)
	assert.Contains(t, string(client.payload), "Upcoming maintenance")

	client.token = completed(errors.New("not connected"))
	assert.Error(t, p.Notify(context.Background(), "x", Message{}))
}

func TestMQTTPusher_ContextTimeout(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{done: make(chan struct{})}}
	p := NewMQTTPusher(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Notify(ctx, "x", Message{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
