package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/config"
	"github.com/iliyamo/open-mic/internal/model"
)

// primeAttempts bounds how often the initial snapshot is re-read while
// changes keep arriving.
const primeAttempts = 3

// Snapshotter reads the current state of a mic.
type Snapshotter interface {
	Snapshot(ctx context.Context, micID uint64) (model.Snapshot, error)
}

// Handler serves GET /socket/mic.  The client sends the mic id as its
// first text frame; the server answers with the current snapshot and
// then pushes a snapshot after every change to that mic.
type Handler struct {
	ctx      context.Context // server lifetime; cancelling it closes every connection
	hub      *Hub
	snaps    Snapshotter
	cfg      config.LiveConfig
	upgrader websocket.Upgrader
}

func NewHandler(ctx context.Context, hub *Hub, snaps Snapshotter, cfg config.LiveConfig) *Handler {
	return &Handler{
		ctx:   ctx,
		hub:   hub,
		snaps: snaps,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Mic upgrades the request and runs the subscription until the peer
// leaves or the server shuts down.
func (h *Handler) Mic(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already answered with an HTTP error.
		log.Debug().Err(err).Str("module", "live").Msg("ws upgrade")
		return nil
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	micID, err := h.readHello(ws)
	if err != nil {
		closeWith(ws, websocket.ClosePolicyViolation, "first frame must be a mic id", h.cfg.WriteTimeout)
		return nil
	}

	conn := newConn(uuid.NewString(), micID, ws, h.cfg)
	h.hub.subscribe(conn)
	defer h.hub.unsubscribe(conn)

	if err := h.primeConn(c.Request().Context(), conn); err != nil {
		reason := "snapshot unavailable"
		if isNotFound(err) {
			reason = "mic not found"
		}
		closeWith(ws, websocket.ClosePolicyViolation, reason, h.cfg.WriteTimeout)
		conn.Close()
		return nil
	}
	log.Debug().Str("module", "live").Str("conn", conn.id).Uint64("mic_id", micID).Msg("subscribed")

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	go conn.writePump(ctx)
	conn.readPump()
	return nil
}

func (h *Handler) readHello(ws *websocket.Conn) (uint64, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.HelloTimeout))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		return 0, err
	}
	if mt != websocket.TextMessage {
		return 0, errors.New("hello must be a text frame")
	}
	return ParseMicID(data)
}

// ParseMicID accepts a bare id ("12"), a JSON string ("\"12\"") or a
// JSON object ({"micId": 12}).
func ParseMicID(data []byte) (uint64, error) {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "{") {
		var hello struct {
			MicID json.Number `json:"micId"`
		}
		if err := json.Unmarshal([]byte(s), &hello); err != nil {
			return 0, err
		}
		s = hello.MicID.String()
	}
	id, err := strconv.ParseUint(strings.Trim(s, `"`), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid mic id")
	}
	return id, nil
}

func (h *Handler) primeConn(ctx context.Context, conn *Conn) error {
	for attempt := 1; ; attempt++ {
		snap, err := h.snaps.Snapshot(ctx, conn.micID)
		if err != nil {
			return err
		}
		frame, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		ok, err := conn.prime(frame, snap.Version(), attempt >= primeAttempts)
		if err != nil || ok {
			return err
		}
	}
}

func closeWith(ws *websocket.Conn, code int, reason string, timeout time.Duration) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(timeout))
	_ = ws.Close()
}

// notFound is implemented by errors that mean the mic does not exist.
type notFound interface{ NotFound() bool }

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}
