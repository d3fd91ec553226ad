package client

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

/*
SYNCHRONIZATION CLIENT

Client is the core behind the editor UI. It owns one Session for the life
of the process:

  Connection Manager       connection.go   channel lifecycle, close classification
  Change Propagation       propagation.go  local edits out, remote updates in, echo guard
  Debounce Coordinator     debounce.go     coalesced suggestion requests
  Room Session Controller  session.go      create/join room, deep links

Everything runs on the event loop (loop.go). The exported methods post an
intent to the loop and wait for it to be applied, so a caller always sees
its own effects in the next Snapshot.
*/

const (
	DefaultDebounceDelay  = 600 * time.Millisecond
	DefaultEchoWindow     = 10 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
	DefaultLanguage       = "python"

	// minSuggestionLength is the shortest document worth completing
	minSuggestionLength = 5
)

// Options configures a Client
type Options struct {
	// WSBase is the websocket base, e.g. ws://127.0.0.1:8000
	WSBase   string
	Language string

	DebounceDelay  time.Duration
	EchoWindow     time.Duration
	RequestTimeout time.Duration

	Dialer      Dialer
	Rooms       RoomCreator
	Suggestions SuggestionService
}

// Snapshot is an immutable view of the session for rendering
type Snapshot struct {
	UserID     string
	RoomID     string
	State      ConnectionState
	Status     Status
	Text       string
	Cursor     int
	Suggestion string
	Busy       bool
	// Path is the navigation path the UI should display, e.g. /room/abc123
	Path string
}

// EditingEnabled reports whether the UI should accept keystrokes
func (s Snapshot) EditingEnabled() bool { return s.State == StateConnected }

// CanStartSession reports whether create/join are enabled
func (s Snapshot) CanStartSession() bool { return !s.Busy && s.State != StateConnected }

// Client is the synchronization client for one room session
type Client struct {
	wsBase         string
	language       string
	debounceDelay  time.Duration
	echoWindow     time.Duration
	requestTimeout time.Duration

	dialer      Dialer
	rooms       RoomCreator
	suggestions SuggestionService

	loop    *eventLoop
	updates chan struct{}

	// Session state, owned by the loop
	userID string
	roomID string
	state  ConnectionState
	status Status
	busy   bool
	path   string

	conn       connection
	doc        document
	echo       echoGuard
	suggestion suggestionState
}

// New creates a client. Call Start before using it.
func New(opts Options) *Client {
	c := &Client{
		wsBase:         strings.TrimRight(opts.WSBase, "/"),
		language:       opts.Language,
		debounceDelay:  opts.DebounceDelay,
		echoWindow:     opts.EchoWindow,
		requestTimeout: opts.RequestTimeout,
		dialer:         opts.Dialer,
		rooms:          opts.Rooms,
		suggestions:    opts.Suggestions,
		loop:           newEventLoop(64),
		updates:        make(chan struct{}, 1),
		userID:         UserID(),
		state:          StateDisconnected,
		status:         idleStatus(),
	}

	if c.language == "" {
		c.language = DefaultLanguage
	}
	if c.debounceDelay <= 0 {
		c.debounceDelay = DefaultDebounceDelay
	}
	if c.echoWindow <= 0 {
		c.echoWindow = DefaultEchoWindow
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.dialer == nil {
		c.dialer = WebSocketDialer{}
	}

	return c
}

// Start runs the event loop
func (c *Client) Start() {
	go c.loop.run(c.notify)
}

// Shutdown closes the channel, stops all timers and the event loop
func (c *Client) Shutdown() {
	c.loop.do(func() {
		c.teardown()
		c.echo.disarm()
		c.suggestion.cancel()
	})
	c.loop.stop()
}

// Updates delivers a signal after every processed event. Signals coalesce;
// read Snapshot to get the current state.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns the current session state
func (c *Client) Snapshot() Snapshot {
	var s Snapshot
	c.loop.read(func() { s = c.snapshot() })
	return s
}

func (c *Client) snapshot() Snapshot {
	return Snapshot{
		UserID:     c.userID,
		RoomID:     c.roomID,
		State:      c.state,
		Status:     c.status,
		Text:       c.doc.text,
		Cursor:     c.doc.cursor,
		Suggestion: c.suggestion.pending,
		Busy:       c.busy,
		Path:       c.path,
	}
}

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Client) setStatus(s Status) {
	c.status = s
}

// roomURL is the channel address for a room
func (c *Client) roomURL(roomID string) string {
	return c.wsBase + "/ws/" + url.PathEscape(roomID)
}

var processUserID = sync.OnceValue(func() string {
	id := strings.ToLower(ksuid.New().String())
	return id[len(id)-6:]
})

// UserID is this process's participant identifier. It is generated on first
// use and never changes.
func UserID() string {
	return processUserID()
}
