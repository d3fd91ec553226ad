package client

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"codesync/internal/protocol"
)

// suggestionState holds the pending inline suggestion and the debounce timer.
// Scheduling a new request cancels the previous one before arming, so only
// the last edit of a burst reaches the suggestion service.
type suggestionState struct {
	pending string
	timer   *time.Timer
	gen     int
}

func (s *suggestionState) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// OnEdit records an edit for the suggestion engine
func (c *Client) OnEdit(text string, cursor int) {
	c.loop.do(func() { c.onEdit(text, clampCursor(cursor, text)) })
}

// AcceptSuggestion inserts the pending suggestion at the cursor and
// broadcasts the result like any other edit. Returns false when nothing is
// pending.
func (c *Client) AcceptSuggestion() bool {
	var accepted bool
	c.loop.do(func() { accepted = c.acceptSuggestion() })
	return accepted
}

func (c *Client) onEdit(text string, cursor int) {
	c.suggestion.pending = ""
	c.schedule(c.debounceDelay, func() { c.requestSuggestion(text, cursor) })
}

// schedule runs action on the loop after delay unless another schedule call
// comes first
func (c *Client) schedule(delay time.Duration, action func()) {
	c.suggestion.cancel()
	gen := c.suggestion.gen

	c.suggestion.timer = time.AfterFunc(delay, func() {
		c.loop.post(func() {
			if c.suggestion.gen != gen {
				return
			}
			c.suggestion.timer = nil
			action()
		})
	})
}

func (c *Client) requestSuggestion(text string, cursor int) {
	if c.state != StateConnected || utf8.RuneCountInString(text) < minSuggestionLength {
		c.suggestion.pending = ""
		return
	}
	if c.suggestions == nil {
		return
	}

	req := protocol.SuggestionRequest{
		Code:           text,
		CursorPosition: cursor,
		Language:       c.language,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	go func() {
		defer cancel()
		suggestion, err := c.suggestions.Suggest(ctx, req)
		c.loop.post(func() { c.handleSuggestion(suggestion, err) })
	}()
}

// handleSuggestion stores the result. A response for an older edit still
// lands here; the next keystroke clears it.
func (c *Client) handleSuggestion(suggestion string, err error) {
	if err != nil {
		log.Printf("⚠️  Suggestion request failed: %v", err)
		c.suggestion.pending = ""
		return
	}
	c.suggestion.pending = suggestion
}

func (c *Client) acceptSuggestion() bool {
	suggestion := c.suggestion.pending
	if suggestion == "" {
		return false
	}

	text, cursor := insertAt(c.doc.text, c.doc.cursor, suggestion)

	c.applyLocalEdit(text)
	c.suggestion.pending = ""
	c.doc.cursor = cursor
	return true
}
