package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/status"
)

const (
	defaultLivePoll = 200 * time.Millisecond
	pingInterval    = 54 * time.Second
	pongWait        = 60 * time.Second
	writeWait       = 10 * time.Second
	maxLiveMessage  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// liveKey is the part of a snapshot whose change triggers a push.
type liveKey struct {
	indicators    logic.Indicators
	presses       logic.PressCounts
	overwritten   int
	pending       logic.ButtonIndex
	hasPending    bool
	running       bool
	mqttConnected bool
}

func keyOf(snap status.Snapshot) liveKey {
	k := liveKey{
		indicators:    snap.Store.Indicators,
		presses:       snap.Store.Presses,
		overwritten:   snap.Store.Overwritten,
		running:       snap.Running,
		mqttConnected: snap.MQTTConnected,
	}
	if p := snap.Store.Pending; p != nil {
		k.pending, k.hasPending = *p, true
	}
	return k
}

// handleLive upgrades to a websocket that receives the JSON status whenever
// it changes. Text messages from the client are written to the command
// channel.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("live client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxLiveMessage)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Warn("live read error")
				}
				return
			}
			if kind != websocket.TextMessage || s.ch == nil {
				continue
			}
			if _, err := s.ch.Write(msg); err != nil {
				log.WithError(err).Warn("live command rejected")
			}
		}
	}()

	poll := time.NewTicker(s.livePoll)
	ping := time.NewTicker(pingInterval)
	defer func() {
		poll.Stop()
		ping.Stop()
		conn.Close()
		log.Debug("live client disconnected")
	}()

	var (
		last liveKey
		sent bool
	)
	push := func() error {
		snap := s.tracker.Snapshot()
		k := keyOf(snap)
		if sent && k == last {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, status.FormatJSON(snap)); err != nil {
			return err
		}
		last, sent = k, true
		return nil
	}

	if err := push(); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-poll.C:
			if err := push(); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
