package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// room holds the sockets watching one auction. The last leave closes it and
// a closed room refuses joins, so the hub can drop it without losing a
// socket that raced in.
type room struct {
	mu     sync.RWMutex
	conns  map[*clientConn]struct{}
	closed bool
}

func newRoom() *room { return &room{conns: map[*clientConn]struct{}{}} }

func (r *room) add(c *clientConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

// remove closes c and reports whether the room is now empty.
func (r *room) remove(c *clientConn) (empty bool) {
	r.mu.Lock()
	delete(r.conns, c)
	empty = len(r.conns) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	_ = c.rawConn.Close()
	return empty
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// broadcast writes msg outside the lock and returns the sockets that failed.
func (r *room) broadcast(msg []byte) (failed []*clientConn) {
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}
