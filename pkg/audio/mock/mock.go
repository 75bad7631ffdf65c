// Package mock provides an in-memory implementation of [audio.VoiceAgent]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every call so tests can
// assert on order and arguments, and exposes exported fields that control
// return values.
//
// Typical usage:
//
//	agent := &mock.Agent{}
//	pb, _ := agent.Play(ctx, "boom.ogg")
//	<-pb.Done() // already finished unless Hold is set
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/soundboard/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.VoiceAgent = (*Agent)(nil)

// Call is one recorded method invocation.
type Call struct {
	Method string // "Join", "Play", or "Leave"
	Arg    string // channel ID for Join, target for Play
}

// Agent is a mock implementation of [audio.VoiceAgent].
type Agent struct {
	mu sync.Mutex

	// JoinErr is returned by [Agent.Join].
	JoinErr error

	// PlayErr is returned by [Agent.Play].
	PlayErr error

	// LeaveErr is returned by [Agent.Leave] when connected.
	LeaveErr error

	// Hold keeps playbacks running until [Agent.FinishAll] is called.
	// Otherwise every playback finishes immediately with FinishErr.
	Hold bool

	// FinishErr is the error playbacks finish with.
	FinishErr error

	// Calls records every method call in order.
	Calls []Call

	// Playbacks holds every playback returned by Play.
	Playbacks []*audio.Playback

	channelID string
}

// Join implements [audio.VoiceAgent].
func (a *Agent) Join(_ context.Context, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, Call{Method: "Join", Arg: channelID})
	if a.JoinErr != nil {
		return a.JoinErr
	}
	a.channelID = channelID
	return nil
}

// Play implements [audio.VoiceAgent]. A running held playback is finished
// with [audio.ErrReplaced] first.
func (a *Agent) Play(_ context.Context, target string) (*audio.Playback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, Call{Method: "Play", Arg: target})
	if a.PlayErr != nil {
		return nil, a.PlayErr
	}
	if a.channelID == "" {
		return nil, audio.ErrNotConnected
	}
	for _, pb := range a.Playbacks {
		pb.Finish(audio.ErrReplaced)
	}
	pb := audio.NewPlayback(target)
	a.Playbacks = append(a.Playbacks, pb)
	if !a.Hold {
		pb.Finish(a.FinishErr)
	}
	return pb, nil
}

// Leave implements [audio.VoiceAgent].
func (a *Agent) Leave(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, Call{Method: "Leave"})
	if a.channelID == "" {
		return audio.ErrNotConnected
	}
	for _, pb := range a.Playbacks {
		pb.Finish(audio.ErrStopped)
	}
	a.channelID = ""
	return a.LeaveErr
}

// ChannelID implements [audio.VoiceAgent].
func (a *Agent) ChannelID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channelID
}

// FinishAll finishes every held playback with FinishErr.
func (a *Agent) FinishAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, pb := range a.Playbacks {
		pb.Finish(a.FinishErr)
	}
}

// CallsTo returns the arguments of every call to method, in order.
func (a *Agent) CallsTo(method string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.Calls {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Methods returns the method names of every recorded call, in order.
func (a *Agent) Methods() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.Calls))
	for i, c := range a.Calls {
		out[i] = c.Method
	}
	return out
}
