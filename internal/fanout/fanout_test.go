package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scriptyard/scriptyard/internal/models"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(Filter{})
	defer sub.Close()

	b.Publish(models.Event{Type: models.EventRunStarted, ScriptID: 1})

	select {
	case e := <-sub.C:
		require.Equal(t, models.EventRunStarted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByScriptID(t *testing.T) {
	b := New(4)
	want := int64(7)
	sub := b.Subscribe(Filter{ScriptID: &want})
	defer sub.Close()

	b.Publish(models.Event{Type: models.EventRunStarted, ScriptID: 1})
	b.Publish(models.Event{Type: models.EventRunStarted, ScriptID: 7})

	select {
	case e := <-sub.C:
		require.EqualValues(t, 7, e.ScriptID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case e := <-sub.C:
		t.Fatalf("unexpected second event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMailboxDropsOldestOnFull(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(Filter{})
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish(models.Event{Type: models.EventRunStdout, ScriptID: 1, RunID: int64(i)})
	}

	require.Greater(t, sub.Lag(), int64(0))

	// The subscription stays usable: draining it still yields events.
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("subscription appears dead after drops")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(Filter{})
	sub.Close()

	_, ok := <-sub.C
	require.False(t, ok)
}
