package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parkspot-backend/internal/usage"
)

const liveWriteWait = 5 * time.Second

// GetLiveUsage upgrades to a websocket and streams the caller's session
// projections, one per tick while a session is active. The first frame is
// sent immediately. A completed projection is the last frame.
func (h *Handler) GetLiveUsage(c *gin.Context) {
	t, release, err := h.parking.Tracker(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	feed, unsubscribe := t.Subscribe()
	defer unsubscribe()

	// Client frames are ignored; reading is how a close is noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("live usage reader stopped", zap.Error(err))
				}
				return
			}
		}
	}()

	if err := h.writeFrame(conn, firstFrame(t)); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case p, ok := <-feed:
			if !ok {
				return
			}
			if err := h.writeFrame(conn, p); err != nil {
				return
			}
			if p.State == usage.StateCompleted {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"),
					time.Now().Add(liveWriteWait))
				return
			}
		}
	}
}

func firstFrame(t *usage.Tracker) usage.Projection {
	if p, ok := t.Tick(time.Now()); ok {
		return p
	}
	state, session := t.Snapshot()
	p := usage.Projection{At: time.Now(), State: state}
	if session != nil && state == usage.StateActive {
		p.SessionID = session.ID
		p.SpotID = session.SpotID
		p.StartTime = session.StartTime
		p.HourlyRate = session.HourlyRate
	}
	return p
}

func (h *Handler) writeFrame(conn *websocket.Conn, p usage.Projection) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(p); err != nil {
		h.log.Debug("live usage write failed", zap.Error(err))
		return err
	}
	return nil
}
