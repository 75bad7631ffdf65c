package audio

import (
	"sync"
	"time"
)

// Playback tracks one started play. It is finished exactly once; later
// [Playback.Finish] calls are ignored.
type Playback struct {
	target  string
	started time.Time

	once     sync.Once
	done     chan struct{}
	err      error
	finished time.Time
}

// NewPlayback returns an unfinished playback for target.
func NewPlayback(target string) *Playback {
	return &Playback{
		target:  target,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Target returns what was asked to be played.
func (p *Playback) Target() string { return p.target }

// Done is closed once the playback has finished for any reason.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns nil while playing or after a clean finish, otherwise the cause
// ([ErrReplaced], [ErrStopped], or a decode/send failure).
func (p *Playback) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Duration returns how long the playback ran, or has been running so far.
func (p *Playback) Duration() time.Duration {
	select {
	case <-p.done:
		return p.finished.Sub(p.started)
	default:
		return time.Since(p.started)
	}
}

// Finish marks the playback finished with err and closes Done.
func (p *Playback) Finish(err error) {
	p.once.Do(func() {
		p.err = err
		p.finished = time.Now()
		close(p.done)
	})
}
