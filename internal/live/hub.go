// Package live pushes mic snapshots to websocket subscribers.  A Hub keeps
// the subscribers of every mic; Handler serves the /socket/mic endpoint.
package live

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/metrics"
	"github.com/iliyamo/open-mic/internal/model"
)

// Hub fans snapshots out to the connections subscribed to a mic.
// Broadcast never blocks on a slow connection.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]map[*Conn]struct{})}
}

func (h *Hub) subscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.micID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.subs[c.micID] = set
	}
	set[c] = struct{}{}
	metrics.LiveSubscribers.Inc()
}

func (h *Hub) unsubscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.micID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	metrics.LiveSubscribers.Dec()
	if len(set) == 0 {
		delete(h.subs, c.micID)
	}
}

// Subscribers returns the number of connections following a mic.
func (h *Hub) Subscribers(micID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[micID])
}

// Broadcast sends snap to every subscriber of micID.
func (h *Hub) Broadcast(micID uint64, snap model.Snapshot) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.subs[micID]))
	for c := range h.subs[micID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	frame, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("module", "live").Uint64("mic_id", micID).Msg("marshal snapshot")
		return
	}
	for _, c := range conns {
		if err := c.deliver(frame, snap.Version()); err != nil {
			log.Debug().Err(err).Str("module", "live").Str("conn", c.id).Msg("snapshot not delivered")
		}
	}
}
