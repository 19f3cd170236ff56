package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/config"
	"github.com/iliyamo/open-mic/internal/metrics"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Conn is one websocket subscriber.  Frames are queued on send and
// written by writePump.  Until the first snapshot is primed, broadcasts
// only mark the connection dirty so the initial snapshot can never be
// overtaken by an older one.  Frames stamped with a mic version at or
// below the last one queued are dropped, so concurrent commits can never
// reach the peer out of order.
type Conn struct {
	id    string
	micID uint64
	ws    *websocket.Conn
	send  chan []byte
	cfg   config.LiveConfig

	mu     sync.Mutex
	closed bool
	primed  bool
	dirty   bool
	version uint64 // of the newest frame queued
}

func newConn(id string, micID uint64, ws *websocket.Conn, cfg config.LiveConfig) *Conn {
	return &Conn{id: id, micID: micID, ws: ws, cfg: cfg, send: make(chan []byte, cfg.SendBuffer)}
}

// deliver queues a snapshot frame.  A full queue drops its oldest frame:
// every frame is a full replacement, so only the newest matters.
func (c *Conn) deliver(frame []byte, version uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.primed {
		c.dirty = true
		return nil
	}
	if c.stale(version) {
		metrics.SnapshotsDropped.Inc()
		return nil
	}
	return c.enqueueLocked(frame, version)
}

// stale reports whether a frame of the given version is older than what
// the peer already has.  Unversioned frames are never stale.
func (c *Conn) stale(version uint64) bool {
	return version != 0 && version <= c.version
}

func (c *Conn) enqueueLocked(frame []byte, version uint64) error {
	if version > c.version {
		c.version = version
	}
	select {
	case c.send <- frame:
		return nil
	default:
	}
	select {
	case <-c.send:
		metrics.SnapshotsDropped.Inc()
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// prime queues the initial snapshot.  It reports false, queuing nothing,
// when a broadcast arrived since the snapshot may have been read; the
// caller then reads a fresh one.  force primes regardless.
func (c *Conn) prime(frame []byte, version uint64, force bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.dirty && !force {
		c.dirty = false
		return false, nil
	}
	c.primed = true
	return true, c.enqueueLocked(frame, version)
}

// Close is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}

// writePump writes queued frames and pings the peer.
func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("module", "live").Str("conn", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps read deadlines moving on pongs and discards inbound
// frames.  It returns when the peer goes away.
func (c *Conn) readPump() {
	pongWait := c.cfg.PingPeriod * 10 / 9
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "live").Str("conn", c.id).Msg("read failed")
			}
			return
		}
	}
}
