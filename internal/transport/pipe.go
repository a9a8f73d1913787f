package transport

import (
	"context"
	"net"
	"sync"
)

// PipeListener is an in-memory Listener that is also a Dialer. Each Dial
// creates a synchronous net.Pipe and queues the server end for Accept.
type PipeListener struct {
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func NewPipeListener() *PipeListener {
	return &PipeListener{
		conns: make(chan net.Conn, 16),
		done:  make(chan struct{}),
	}
}

func (p *PipeListener) Dial(ctx context.Context) (Conn, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	client, server := net.Pipe()
	select {
	case p.conns <- server:
		return newStreamConn(client), nil
	case <-p.done:
	case <-ctx.Done():
	}
	client.Close()
	server.Close()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, ErrClosed
}

func (p *PipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-p.conns:
		return newStreamConn(c), nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeListener) Addr() string { return "pipe" }

func (p *PipeListener) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
