package client

import (
	"context"
	"log"
	"sync"

	"codesync/internal/protocol"
)

/*
CONNECTION MANAGER

  Disconnected --connect--> Connecting --open--> Connected
  Connecting   --close/error--> Disconnected
  Connected    --close/error--> Disconnected

The connecting guard makes Connect idempotent: while a dial is in flight or
a channel is open, further calls are no-ops, so at most one channel exists
per session. Every terminal outcome (open, close, error, teardown) clears it.

Each connect attempt gets a sequence number. Events from an older attempt
(a dial that finished after teardown, a reader draining a replaced channel)
are dropped on arrival. Releasing a channel retires its attempt, so a read
error that follows a write failure is not reported twice.
*/

type connection struct {
	channel    Channel
	out        *outbox
	connecting bool
	attempt    int
	cancelDial context.CancelFunc
}

// Connect opens the channel to a room. It is a no-op while a channel is
// open or another attempt is in flight.
func (c *Client) Connect(roomID string) bool {
	var started bool
	c.loop.do(func() { started = c.connect(roomID) })
	return started
}

// Teardown closes the channel this client opened. Safe to call repeatedly.
func (c *Client) Teardown() {
	c.loop.do(c.teardown)
}

func (c *Client) connect(roomID string) bool {
	if roomID == "" {
		return false
	}
	if c.conn.connecting || c.conn.channel != nil {
		log.Printf("Already connected or connecting, skipping new channel for room %s", roomID)
		return false
	}

	c.conn.connecting = true
	c.conn.attempt++
	attempt := c.conn.attempt

	c.state = StateConnecting
	c.busy = true
	c.setStatus(connectingStatus())

	target := c.roomURL(roomID)
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	c.conn.cancelDial = cancel

	go func() {
		defer cancel()
		ch, err := c.dialer.Dial(ctx, target)
		posted := c.loop.post(func() { c.handleDial(attempt, roomID, ch, err) })
		if !posted && ch != nil {
			_ = ch.Close()
		}
	}()

	return true
}

func (c *Client) handleDial(attempt int, roomID string, ch Channel, err error) {
	if attempt != c.conn.attempt {
		if ch != nil {
			go closeChannel(ch)
		}
		return
	}
	c.conn.cancelDial = nil

	if err != nil {
		c.handleError(attempt, err)
		return
	}

	c.conn.channel = ch
	c.conn.out = newOutbox()
	go c.writePump(attempt, ch, c.conn.out)
	go c.readPump(attempt, ch)

	c.handleOpen(roomID)
}

func (c *Client) handleOpen(roomID string) {
	c.conn.connecting = false
	c.state = StateConnected
	c.roomID = roomID
	c.busy = false
	c.setStatus(connectedStatus(roomID))
	log.Printf("✓ Connected to room %s", roomID)
}

func (c *Client) handleMessage(attempt int, data []byte) {
	if attempt != c.conn.attempt {
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("⚠️  Failed to parse message: %v", err)
		return
	}
	if !msg.IsDocumentUpdate() {
		log.Printf("Ignoring message of type %q", msg.Type)
		return
	}

	c.applyRemoteUpdate(msg.Code)
	if msg.Type == protocol.TypeInitialState {
		c.setStatus(initialStateStatus(c.roomID))
	} else {
		c.setStatus(liveUpdateStatus(c.roomID))
	}
}

func (c *Client) handleClose(attempt int, code int, reason string) {
	if attempt != c.conn.attempt {
		return
	}
	log.Printf("Channel closed: code=%d reason=%q", code, reason)

	c.release()
	c.state = StateDisconnected
	c.busy = false
	c.setStatus(closeStatus(code))
}

func (c *Client) handleError(attempt int, err error) {
	if attempt != c.conn.attempt {
		return
	}
	log.Printf("❌ WebSocket error: %v", err)

	c.release()
	c.state = StateDisconnected
	c.busy = false
	c.setStatus(connectionErrorStatus())
}

func (c *Client) teardown() {
	wasOpen := c.conn.channel != nil

	// Invalidate the in-flight dial and reader
	c.conn.attempt++
	if c.conn.cancelDial != nil {
		c.conn.cancelDial()
		c.conn.cancelDial = nil
	}
	c.release()

	if wasOpen || c.state != StateDisconnected {
		c.state = StateDisconnected
		c.busy = false
		c.setStatus(closeStatus(CloseNormal))
	}
}

// release drops the channel, retires its attempt and clears the connecting
// guard. The close handshake runs off the loop.
func (c *Client) release() {
	c.conn.connecting = false
	if c.conn.out != nil {
		c.conn.out.close()
		c.conn.out = nil
	}
	if c.conn.channel != nil {
		c.conn.attempt++
		go closeChannel(c.conn.channel)
		c.conn.channel = nil
	}
}

func closeChannel(ch Channel) {
	if err := ch.Close(); err != nil {
		log.Printf("Ignoring close error: %v", err)
	}
}

// channelOpen reports whether a frame sent now would reach the server
func (c *Client) channelOpen() bool {
	return c.conn.channel != nil && c.state == StateConnected
}

func (c *Client) sendMessage(msg protocol.Message) bool {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("⚠️  Failed to encode message: %v", err)
		return false
	}

	return c.conn.out != nil && c.conn.out.put(data)
}

// readPump forwards frames to the loop until the channel fails
func (c *Client) readPump(attempt int, ch Channel) {
	for {
		data, err := ch.Read()
		if err != nil {
			c.loop.post(func() {
				if code, reason, ok := closeCode(err); ok {
					c.handleClose(attempt, code, reason)
					return
				}
				c.handleError(attempt, err)
			})
			return
		}

		if !c.loop.post(func() { c.handleMessage(attempt, data) }) {
			return
		}
	}
}

// writePump writes outbound frames so the loop never blocks on the network.
// A failed write ends the session like a read error would.
func (c *Client) writePump(attempt int, ch Channel, out *outbox) {
	for {
		data, ok := out.take()
		if !ok {
			return
		}
		if err := ch.Write(data); err != nil {
			log.Printf("⚠️  Failed to write to channel: %v", err)
			c.loop.post(func() { c.handleError(attempt, err) })
			return
		}
	}
}

// outbox holds the newest unsent frame. Every code_change carries the whole
// document, so a newer frame replaces an unsent older one and the last frame
// written always matches the local text.
type outbox struct {
	mu      sync.Mutex
	pending []byte
	closed  bool
	wake    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

// put replaces the pending frame. False once the outbox is closed.
func (o *outbox) put(data []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.pending = data
	o.mu.Unlock()

	o.signal()
	return true
}

// take blocks until a frame is pending or the outbox is closed
func (o *outbox) take() ([]byte, bool) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, false
		}
		if o.pending != nil {
			data := o.pending
			o.pending = nil
			o.mu.Unlock()
			return data, true
		}
		o.mu.Unlock()
		<-o.wake
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.pending = nil
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
