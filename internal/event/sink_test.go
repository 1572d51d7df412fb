package event

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(evt Event) {
	r.events = append(r.events, evt)
}

func TestChannelSink_DeliversInOrder(t *testing.T) {
	sink := NewChannelSink(4)

	for i := 0; i < 3; i++ {
		sink.Publish(Event{Type: TypeSchedulerTick, RunID: fmt.Sprintf("run_%d", i), At: time.Now()})
	}

	for i := 0; i < 3; i++ {
		select {
		case evt := <-sink.Events():
			assert.Equal(t, fmt.Sprintf("run_%d", i), evt.RunID)
		default:
			t.Fatalf("expected buffered event %d", i)
		}
	}
}

func TestChannelSink_DropsOldestWhenFull(t *testing.T) {
	sink := NewChannelSink(2)

	// Publish more events than the buffer holds; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			sink.Publish(Event{Type: TypeRunFinished, RunID: fmt.Sprintf("run_%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}

	var got []string
	for {
		select {
		case evt := <-sink.Events():
			got = append(got, evt.RunID)
			continue
		default:
		}
		break
	}

	// The newest event survives; the oldest ones were dropped.
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, "run_9", got[len(got)-1])
}

func TestChannelSink_DefaultSize(t *testing.T) {
	sink := NewChannelSink(0)
	assert.Equal(t, 64, cap(sink.ch))
}

func TestMultiSink_FanOutOrder(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := NewMultiSink(a, b)

	multi.Publish(Event{Type: TypeTaskDispatched, TaskID: "tsk_1"})
	multi.Publish(Event{Type: TypeRunStarted, TaskID: "tsk_1", RunID: "run_1"})

	require.Len(t, a.events, 2)
	require.Len(t, b.events, 2)
	assert.Equal(t, TypeTaskDispatched, a.events[0].Type)
	assert.Equal(t, TypeRunStarted, b.events[1].Type)
}
