// Package realtime connects a call to the speech service: audio goes up as
// pcm16, synthesized audio comes back as pcm16 deltas.
package realtime

import "context"

// Reply is one unit read from a channel. Audio carries little-endian pcm16
// at the configured output rate; Done marks the end of a response.
type Reply struct {
	Audio []byte
	Done  bool
}

// Channel is a bidirectional audio stream for a single call.
type Channel interface {
	// SendAudio appends little-endian pcm16 to the remote input buffer.
	SendAudio(ctx context.Context, pcm []byte) error

	// Commit ends the input and requests a response.
	Commit(ctx context.Context) error

	// Receive blocks until the next audio delta or response completion.
	Receive(ctx context.Context) (Reply, error)

	Close() error
}

// Dialer opens a Channel for a call.
type Dialer interface {
	Dial(ctx context.Context, callID string) (Channel, error)
}
