package events

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber is one connected client's view of the broadcaster: a
// bounded send queue drained by the connection's writer goroutine.
// Publishers only ever enqueue; network I/O never happens on the
// publishing goroutine.
type Subscriber struct {
	ID string

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newSubscriber(queueSize int) *Subscriber {
	return &Subscriber{
		ID:     uuid.New().String(),
		send:   make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
}

// Receive returns the channel the writer goroutine drains.
func (s *Subscriber) Receive() <-chan []byte {
	return s.send
}

// Done is closed when the subscriber has been removed from the
// broadcaster. Queued messages may still be pending on Receive.
func (s *Subscriber) Done() <-chan struct{} {
	return s.closed
}

// enqueue attempts a non-blocking send. Returns false when the queue is
// full or the subscriber is closed. The send channel is never closed,
// so a racing enqueue can never panic.
func (s *Subscriber) enqueue(data []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// flush discards everything currently queued.
func (s *Subscriber) flush() {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}
