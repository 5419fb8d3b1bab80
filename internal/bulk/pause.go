package bulk

import "sync/atomic"

// PauseToken requests a graceful stop of one session's orchestrator loop.
// Each session gets its own token; pausing one session never affects others.
type PauseToken struct {
	requested atomic.Bool
}

// NewPauseToken returns a fresh, unset token.
func NewPauseToken() *PauseToken {
	return &PauseToken{}
}

// Pause requests that the loop stop before the next subject.
func (p *PauseToken) Pause() {
	p.requested.Store(true)
}

// Requested reports whether a pause has been requested.
func (p *PauseToken) Requested() bool {
	return p.requested.Load()
}

// Clear resets the token so the session can be resumed later.
func (p *PauseToken) Clear() {
	p.requested.Store(false)
}
