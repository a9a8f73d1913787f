package comms

import (
	"context"
	"sync"
	"time"
)

// WaitForConnection blocks for at most timeout until every session is
// connected. Results line up with sessions; a nil or closed session, or one
// still unconnected at the deadline, reports false. All sessions share the
// one deadline.
func WaitForConnection(timeout time.Duration, sessions ...*Session) []bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return WaitForConnectionContext(ctx, sessions...)
}

// WaitForConnectionContext is WaitForConnection bounded by ctx.
func WaitForConnectionContext(ctx context.Context, sessions ...*Session) []bool {
	results := make([]bool, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		if s == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.awaitConnected(ctx)
		}()
	}
	wg.Wait()
	return results
}

func (s *Session) awaitConnected(ctx context.Context) bool {
	for {
		if s.closed.Load() {
			return false
		}
		st, changed := s.watch()
		switch st {
		case StateConnected:
			return true
		case StateClosed:
			return false
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}
