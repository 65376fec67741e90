package envelope

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("envelope: transport closed")

// Sender delivers messages one way, at most once, without acknowledgement.
type Sender interface {
	Send(msg *Message) error
}

// Transport is one end of a duplex channel between the two process roles.
type Transport interface {
	Sender
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

// PipeEnd is one end of an in-process pipe. Messages cross the pipe in
// encoded form only, so the two ends never share message memory.
type PipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

// NewPipe creates a connected pair of transports with the given per
// direction buffer.
func NewPipe(buffer int) (*PipeEnd, *PipeEnd) {
	if buffer <= 0 {
		buffer = 64
	}
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	state := &pipeState{done: make(chan struct{})}

	return &PipeEnd{in: ba, out: ab, state: state},
		&PipeEnd{in: ab, out: ba, state: state}
}

// Send encodes msg and hands it to the peer.
func (p *PipeEnd) Send(msg *Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

// Receive blocks until a message arrives, the pipe closes or ctx ends.
func (p *PipeEnd) Receive(ctx context.Context) (*Message, error) {
	select {
	case data := <-p.in:
		return Unmarshal(data)
	case <-p.state.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts both directions. Pending messages are discarded.
func (p *PipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
