package transcript

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// session is the transient state of one SendMessage call.
type session struct {
	id         string
	generation uint64
	log        zerolog.Logger

	cancel     context.CancelCauseFunc
	cancelOnce sync.Once
	onCancel   func(cause error)

	// Only the read loop touches these, always under the store mutex.
	openIndex int
	acc       strings.Builder
}

// abort fires the session's cancellation token. Later calls are no-ops.
func (s *session) abort(cause error) {
	s.cancelOnce.Do(func() {
		s.log.Debug().AnErr("cause", cause).Msg("Cancelling chat session")
		s.cancel(cause)
		if s.onCancel != nil {
			s.onCancel(cause)
		}
	})
}

// readResult is one step of the transport body as seen by the read loop.
type readResult struct {
	opened bool
	chunk  []byte
	err    error
}

const readBufferSize = 32 * 1024

// pump opens the request and forwards the body chunk by chunk until the
// body ends or ctx is cancelled. Cancelling ctx closes the body, which
// unblocks a pending Read.
func pump(ctx context.Context, transport Transport, req ChatRequest, out chan<- readResult) {
	send := func(r readResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	body, err := transport.Open(ctx, req)
	if err != nil {
		send(readResult{err: err})
		return
	}
	defer body.Close()

	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	if !send(readResult{opened: true}) {
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !send(readResult{chunk: append([]byte(nil), buf[:n]...)}) {
				return
			}
		}
		if err != nil {
			send(readResult{err: err})
			return
		}
	}
}
