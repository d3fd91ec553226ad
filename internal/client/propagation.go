package client

import (
	"time"
	"unicode/utf8"

	"codesync/internal/protocol"
)

/*
CHANGE PROPAGATION

The protocol carries the whole document on every change and has no edit
identifiers, so the echo guard is the only thing preventing a loop where a
remote update is re-sent as a local edit and bounces back.

The guard is armed before the document is replaced and disarms after a
fixed window. A second remote update inside the window restarts it.
Known limitation: the last update received wins; an edit interleaved with
another participant's can be silently overwritten.
*/

type document struct {
	text string
	// cursor is a rune offset into text
	cursor int
}

type echoGuard struct {
	armed bool
	timer *time.Timer
	gen   int
}

func (g *echoGuard) disarm() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.armed = false
	g.gen++
}

// ApplyLocalEdit replaces the document with text and broadcasts it
func (c *Client) ApplyLocalEdit(text string) bool {
	var sent bool
	c.loop.do(func() { sent = c.applyLocalEdit(text) })
	return sent
}

// Type handles a keystroke: text is the editor content after the edit and
// cursor the caret position. It clears any pending suggestion, propagates
// the edit and schedules a suggestion request. Ignored unless connected.
func (c *Client) Type(text string, cursor int) bool {
	var accepted bool
	c.loop.do(func() { accepted = c.typeText(text, cursor) })
	return accepted
}

// Insert types text at the caret. The document is read and edited in one
// loop step, so a remote update arriving meanwhile is not overwritten.
func (c *Client) Insert(text string) bool {
	var accepted bool
	c.loop.do(func() {
		updated, cursor := insertAt(c.doc.text, c.doc.cursor, text)
		accepted = c.typeText(updated, cursor)
	})
	return accepted
}

func (c *Client) typeText(text string, cursor int) bool {
	if c.state != StateConnected {
		return false
	}
	c.doc.cursor = clampCursor(cursor, text)
	c.applyLocalEdit(text)
	c.onEdit(text, c.doc.cursor)
	return true
}

// SetCursor moves the caret without editing
func (c *Client) SetCursor(cursor int) {
	c.loop.do(func() { c.doc.cursor = clampCursor(cursor, c.doc.text) })
}

func (c *Client) applyLocalEdit(text string) bool {
	c.doc.text = text
	c.doc.cursor = clampCursor(c.doc.cursor, text)

	if c.echo.armed || !c.channelOpen() {
		return false
	}
	return c.sendMessage(protocol.CodeChange(text))
}

func (c *Client) applyRemoteUpdate(text string) {
	c.armEchoGuard()
	c.doc.text = text
	c.doc.cursor = clampCursor(c.doc.cursor, text)
}

func (c *Client) armEchoGuard() {
	if c.echo.timer != nil {
		c.echo.timer.Stop()
	}
	c.echo.gen++
	gen := c.echo.gen
	c.echo.armed = true

	c.echo.timer = time.AfterFunc(c.echoWindow, func() {
		c.loop.post(func() {
			if c.echo.gen != gen {
				return
			}
			c.echo.armed = false
			c.echo.timer = nil
		})
	})
}

// insertAt inserts s at cursor and returns the new text and the caret after s
func insertAt(text string, cursor int, s string) (string, int) {
	runes := []rune(text)
	pos := clampCursor(cursor, text)
	return string(runes[:pos]) + s + string(runes[pos:]), pos + utf8.RuneCountInString(s)
}

func clampCursor(cursor int, text string) int {
	if cursor < 0 {
		return 0
	}
	if n := utf8.RuneCountInString(text); cursor > n {
		return n
	}
	return cursor
}
