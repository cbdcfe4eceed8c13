package services

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is the Session of one realtime client. Its outbox is drained
// by the goroutine that owns the socket, which is also the only writer.
type Connection struct {
	id     string
	userId uint

	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(userId uint, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 64
	}
	return &Connection{
		id:     uuid.NewString(),
		userId: userId,
		outbox: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (v *Connection) ID() string   { return v.id }
func (v *Connection) UserID() uint { return v.userId }

func (v *Connection) Outbox() <-chan []byte { return v.outbox }

// Deliver never blocks: a full outbox means the client is too slow and the
// packet is dropped. The client resynchronizes by refetching.
func (v *Connection) Deliver(packet []byte) error {
	select {
	case <-v.done:
		return ErrSessionClosed
	default:
	}
	select {
	case v.outbox <- packet:
		return nil
	case <-v.done:
		return ErrSessionClosed
	default:
		return ErrSessionBusy
	}
}

func (v *Connection) Close() {
	v.closeOnce.Do(func() { close(v.done) })
}

func (v *Connection) Done() <-chan struct{} { return v.done }
