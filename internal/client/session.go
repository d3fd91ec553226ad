package client

import (
	"context"
	"errors"
	"log"
	"regexp"
)

// ROOM SESSION CONTROLLER: the entry points the UI buttons call

var deepLinkPattern = regexp.MustCompile(`^/room/([a-zA-Z0-9]+)`)

// ParseDeepLink extracts the room identifier from a /room/{id} path
func ParseDeepLink(path string) (string, bool) {
	m := deepLinkPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RoomPath is the navigation path for a room
func RoomPath(roomID string) string {
	return "/room/" + roomID
}

// CreateRoom asks the server for a new room and joins it once created.
// Returns false when disabled (connected or an operation is in flight).
func (c *Client) CreateRoom() bool {
	var started bool
	c.loop.do(func() {
		if !c.canStartSession() || c.rooms == nil {
			return
		}
		started = true
		c.busy = true
		c.setStatus(creatingRoomStatus())

		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		go func() {
			defer cancel()
			roomID, err := c.rooms.CreateRoom(ctx)
			c.loop.post(func() { c.handleRoomCreated(roomID, err) })
		}()
	})
	return started
}

// JoinRoom connects to an existing room.
// Returns false when disabled or roomID is empty.
func (c *Client) JoinRoom(roomID string) bool {
	var started bool
	c.loop.do(func() {
		if roomID == "" || !c.canStartSession() {
			return
		}
		c.path = RoomPath(roomID)
		started = c.connect(roomID)
	})
	return started
}

// HandleDeepLink joins the room named by an initial /room/{id} path
func (c *Client) HandleDeepLink(path string) bool {
	roomID, ok := ParseDeepLink(path)
	if !ok {
		return false
	}
	return c.JoinRoom(roomID)
}

func (c *Client) canStartSession() bool {
	return !c.busy && c.state != StateConnected
}

func (c *Client) handleRoomCreated(roomID string, err error) {
	c.busy = false
	if err != nil {
		log.Printf("❌ Room creation failed: %v", err)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			c.setStatus(roomCreationFailedStatus())
		} else {
			c.setStatus(roomCreationNetworkErrorStatus())
		}
		return
	}

	log.Printf("✓ Created room %s", roomID)
	c.path = RoomPath(roomID)
	c.connect(roomID)
}
