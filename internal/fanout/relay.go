// Package fanout relays mic snapshots between service instances over
// NATS, so a subscriber connected to any instance sees changes committed
// on every other one.
package fanout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/metrics"
	"github.com/iliyamo/open-mic/internal/model"
)

// Local delivers a snapshot to this instance's subscribers.
type Local interface {
	Broadcast(micID uint64, snap model.Snapshot)
}

// packet is the NATS payload.  Origin lets an instance ignore its own
// messages, which it already delivered locally.
type packet struct {
	Origin   string         `json:"origin"`
	MicID    uint64         `json:"micId"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// Relay is a Broadcaster that delivers locally and publishes on
// "<prefix>.<micId>" for the other instances.
type Relay struct {
	nc     *nats.Conn
	local  Local
	prefix string
	origin string
	sub    *nats.Subscription
}

// Connect dials NATS with unlimited reconnects.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("open-mic"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "fanout").Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "fanout").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

func NewRelay(nc *nats.Conn, prefix string, local Local) *Relay {
	return &Relay{nc: nc, local: local, prefix: strings.TrimSuffix(prefix, "."), origin: uuid.NewString()}
}

// Subject is where snapshots of micID are published.
func (r *Relay) Subject(micID uint64) string {
	return r.prefix + "." + strconv.FormatUint(micID, 10)
}

// Start subscribes to snapshots from the other instances.
func (r *Relay) Start() error {
	sub, err := r.nc.Subscribe(r.prefix+".*", r.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s.*: %w", r.prefix, err)
	}
	r.sub = sub
	log.Info().Str("module", "fanout").Str("subject", r.prefix+".*").Msg("relaying snapshots")
	return nil
}

// Broadcast implements service.Broadcaster.
func (r *Relay) Broadcast(micID uint64, snap model.Snapshot) {
	r.local.Broadcast(micID, snap)
	data, err := json.Marshal(packet{Origin: r.origin, MicID: micID, Snapshot: snap})
	if err != nil {
		log.Error().Err(err).Str("module", "fanout").Msg("marshal packet")
		return
	}
	if err := r.nc.Publish(r.Subject(micID), data); err != nil {
		log.Warn().Err(err).Str("module", "fanout").Uint64("mic_id", micID).Msg("publish snapshot")
		return
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
}

func (r *Relay) handle(msg *nats.Msg) {
	var p packet
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		log.Warn().Str("module", "fanout").Str("subject", msg.Subject).Msg("invalid snapshot packet")
		return
	}
	if p.Origin == r.origin || p.MicID == 0 {
		return
	}
	metrics.RelayMessages.WithLabelValues("in").Inc()
	r.local.Broadcast(p.MicID, p.Snapshot)
}

// Close drops the subscription and drains the connection.  Publishes
// after Close fail and are logged by Broadcast.
func (r *Relay) Close() error {
	var err error
	if r.sub != nil {
		err = r.sub.Unsubscribe()
		r.sub = nil
	}
	if r.nc != nil {
		// Drain flushes pending publishes before closing the connection.
		if derr := r.nc.Drain(); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}
