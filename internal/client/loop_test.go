package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoop_RunsInOrder(t *testing.T) {
	notified := make(chan struct{}, 10)
	l := newEventLoop(4)
	go l.run(func() { notified <- struct{}{} })
	defer l.stop()

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, l.post(func() { got = append(got, i) }))
	}
	require.True(t, l.do(func() {}))
	// Flush the hook of the last event
	require.True(t, l.read(func() {}))

	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Len(t, notified, 4)
}

func TestEventLoop_ReadDoesNotNotify(t *testing.T) {
	notified := make(chan struct{}, 10)
	l := newEventLoop(4)
	go l.run(func() { notified <- struct{}{} })
	defer l.stop()

	var seen bool
	require.True(t, l.read(func() { seen = true }))
	assert.True(t, seen)
	assert.Empty(t, notified)

	require.True(t, l.do(func() {}))
	require.True(t, l.read(func() {}))
	assert.Len(t, notified, 1)
}

func TestEventLoop_Stopped(t *testing.T) {
	l := newEventLoop(1)
	go l.run(func() {})
	l.stop()
	l.stop()

	assert.False(t, l.post(func() {}))

	done := make(chan bool)
	go func() { done <- l.do(func() {}) }()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("do blocked on a stopped loop")
	}
}
