package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New(4)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Publish("hello")

	for _, s := range []<-chan Event{s1, s2} {
		select {
		case e := <-s:
			assert.Equal(t, "hello", e)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New(1)
	defer b.Close()

	_ = b.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(1)
	defer b.Close()

	s := b.Subscribe()
	b.Unsubscribe(s)
	_, ok := <-s
	require.False(t, ok)
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	b := New(1)
	s := b.Subscribe()
	b.Close()

	_, ok := <-s
	require.False(t, ok)
	b.Publish("dropped")

	_, ok = <-b.Subscribe()
	assert.False(t, ok)
}
