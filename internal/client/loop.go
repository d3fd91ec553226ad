package client

import "sync"

/*
EVENT LOOP

All session state is owned by a single goroutine. Socket events, timer
firings, HTTP results and user intents are posted here as closures and run
strictly in arrival order, so no field of Client needs a lock.

Helper goroutines (socket reader, HTTP calls, timers) never touch state
directly - they only post.
*/

type eventLoop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once

	// quiet suppresses after for the current event; loop-owned
	quiet bool
}

func newEventLoop(buffer int) *eventLoop {
	return &eventLoop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
	}
}

// run processes events until stop is called. after runs once per event.
func (l *eventLoop) run(after func()) {
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.events:
			fn()
			if l.quiet {
				l.quiet = false
				continue
			}
			after()
		}
	}
}

// post queues fn and reports whether the loop accepted it
func (l *eventLoop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// do queues fn and waits for it to run. Must not be called from the loop.
func (l *eventLoop) do(fn func()) bool {
	ran := make(chan struct{})
	if !l.post(func() {
		fn()
		close(ran)
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// read is do for closures that only observe state. It does not trigger
// the after hook, so renderers polling on updates do not wake themselves.
func (l *eventLoop) read(fn func()) bool {
	return l.do(func() {
		fn()
		l.quiet = true
	})
}

func (l *eventLoop) stop() {
	l.once.Do(func() { close(l.done) })
}
