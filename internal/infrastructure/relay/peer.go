package relay

import (
	"net/http"
	"sync"
	"time"

	"borerelay/internal/core/domain"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// peer is one authenticated relay connection. All writes to conn happen on
// the writer goroutine, fed through send in FIFO order.
type peer struct {
	id          string
	conn        *websocket.Conn
	perms       domain.PermissionResult
	remoteAddr  string
	connectedAt time.Time
	limiter     *rate.Limiter

	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newPeer(id string, conn *websocket.Conn, perms domain.PermissionResult, r *http.Request, bufSize int, limiter *rate.Limiter) *peer {
	return &peer{
		id:          id,
		conn:        conn,
		perms:       perms,
		remoteAddr:  r.RemoteAddr,
		connectedAt: time.Now(),
		limiter:     limiter,
		send:        make(chan []byte, bufSize),
		done:        make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the peer is closed or its
// queue is full.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) close(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closeCode = code
		p.closeReason = reason
		close(p.done)
	})
}

func (p *peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// PeerInfo describes a connected peer for status output.
type PeerInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
	IsOwner     bool      `json:"isOwner"`
}

func (p *peer) info() PeerInfo {
	return PeerInfo{
		ID:          p.id,
		RemoteAddr:  p.remoteAddr,
		ConnectedAt: p.connectedAt,
		IsOwner:     p.perms.IsOwner,
	}
}
