package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"codesync/internal/protocol"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

type fakeChannel struct {
	incoming chan []byte
	fail     chan error
	closed   chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closeOnce sync.Once
	closes    int
	// writeGate, when set, holds every write until closed
	writeGate chan struct{}
	writeErr  error
	// closeGate, when set, holds Close until closed
	closeGate chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan []byte, 16),
		fail:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeChannel) Read() ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case err := <-f.fail:
		return nil, err
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeChannel) Write(data []byte) error {
	f.mu.Lock()
	gate, writeErr := f.writeGate, f.writeErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-f.closed:
			return net.ErrClosed
		}
	}
	if writeErr != nil {
		return writeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	gate := f.closeGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.closes++
	f.mu.Unlock()

	err := errors.New("already closed")
	f.closeOnce.Do(func() {
		close(f.closed)
		err = nil
	})
	return err
}

func (f *fakeChannel) deliver(t *testing.T, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	f.incoming <- data
}

func (f *fakeChannel) closeFromServer(code int, reason string) {
	f.fail <- &websocket.CloseError{Code: code, Text: reason}
}

func (f *fakeChannel) sent() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]protocol.Message, 0, len(f.written))
	for _, data := range f.written {
		msg, err := protocol.Decode(data)
		if err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	urls     []string
	channels []*fakeChannel
	err      error
	// gate, when set, holds every dial until closed
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Channel, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	gate, dialErr := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	ch := newFakeChannel()
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	return ch, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.channels) {
		return nil
	}
	return d.channels[i]
}

type fakeSuggestions struct {
	mu         sync.Mutex
	requests   []protocol.SuggestionRequest
	suggestion string
	err        error
}

func (f *fakeSuggestions) Suggest(ctx context.Context, req protocol.SuggestionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.suggestion, f.err
}

func (f *fakeSuggestions) calls() []protocol.SuggestionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.SuggestionRequest(nil), f.requests...)
}

type fakeRooms struct {
	roomID string
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeRooms) CreateRoom(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.roomID, f.err
}

type harness struct {
	client      *Client
	dialer      *fakeDialer
	suggestions *fakeSuggestions
	rooms       *fakeRooms
}

func newHarness(t *testing.T, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{
		dialer:      &fakeDialer{},
		suggestions: &fakeSuggestions{},
		rooms:       &fakeRooms{roomID: "abc123"},
	}
	opts := Options{
		WSBase:        "ws://sync.test",
		DebounceDelay: 40 * time.Millisecond,
		EchoWindow:    10 * time.Millisecond,
		Dialer:        h.dialer,
		Rooms:         h.rooms,
		Suggestions:   h.suggestions,
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.client = New(opts)
	h.client.Start()
	t.Cleanup(h.client.Shutdown)
	return h
}

// join connects to roomID and waits for the channel to open
func (h *harness) join(t *testing.T, roomID string) *fakeChannel {
	t.Helper()
	require.True(t, h.client.JoinRoom(roomID))
	require.Eventually(t, func() bool {
		return h.client.Snapshot().State == StateConnected
	}, eventually, tick)
	return h.dialer.channel(h.dialer.dials() - 1)
}

// waitEchoClear blocks until the echo guard window has passed
func (h *harness) waitEchoClear(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		var armed bool
		h.client.loop.do(func() { armed = h.client.echo.armed })
		return !armed
	}, eventually, tick)
}
