package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/observerproto"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

// Server exposes the observer feed over a loopback-only websocket: world
// change events and stats flow out, observer position updates flow in.
type Server struct {
	mgr    *world.Manager
	hub    *Hub
	params observerproto.WorldParams

	palette       []string
	paletteDigest string

	log      *log.Logger
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(mgr *world.Manager, hub *Hub, params observerproto.WorldParams, palette []string, paletteDigest string, logger *log.Logger) *Server {
	return &Server{
		mgr:           mgr,
		hub:           hub,
		params:        params,
		palette:       palette,
		paletteDigest: paletteDigest,
		log:           logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) welcome() observerproto.WelcomeMsg {
	return observerproto.WelcomeMsg{
		Type:            observerproto.TypeWelcome,
		ProtocolVersion: observerproto.Version,
		WorldParams:     s.params,
		TilePalette:     s.palette,
		PaletteDigest:   s.paletteDigest,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.welcome())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := s.nextID.Add(1)
		if s.log != nil {
			s.log.Printf("observer %d connected from %s", sid, r.RemoteAddr)
		}
		var statsEveryTicks atomic.Int64
		statsEveryTicks.Store(int64(sub.StatsEveryTicks))

		if err := s.writeJSON(conn, s.welcome()); err != nil {
			return
		}

		hubID, events := s.hub.subscribe(4096)
		defer s.hub.unsubscribe(hubID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go s.writeLoop(ctx, conn, events, &statsEveryTicks, writeErr)

		// Reader loop: POSITION updates and SUBSCRIBE re-sends.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var head struct {
				Type            string `json:"type"`
				ProtocolVersion string `json:"protocol_version"`
			}
			if err := json.Unmarshal(msg, &head); err != nil || head.ProtocolVersion != observerproto.Version {
				continue
			}
			switch head.Type {
			case observerproto.TypePosition:
				var pos observerproto.PositionMsg
				if err := json.Unmarshal(msg, &pos); err != nil {
					continue
				}
				s.mgr.UpdateObserver(world.ChunkCoord{X: pos.Chunk[0], Y: pos.Chunk[1]})
			case observerproto.TypeSubscribe:
				var again observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &again); err != nil {
					continue
				}
				statsEveryTicks.Store(int64(again.StatsEveryTicks))
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		if s.log != nil {
			s.log.Printf("observer %d disconnected", sid)
		}
	}
}

// writeLoop batches events and interleaves periodic stats. Events are
// flushed on a short timer so one world tick's worth of changes goes out as
// one message.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan observerproto.Event, statsEveryTicks *atomic.Int64, writeErr chan<- error) {
	flush := time.NewTicker(50 * time.Millisecond)
	defer flush.Stop()
	statsTicker := time.NewTicker(s.statsInterval(statsEveryTicks.Load()))
	defer statsTicker.Stop()

	var batch []observerproto.Event
	for {
		select {
		case <-ctx.Done():
			writeErr <- ctx.Err()
			return
		case e := <-events:
			batch = append(batch, e)
		case <-flush.C:
			if len(batch) == 0 {
				continue
			}
			out := observerproto.EventBatchMsg{
				Type:            observerproto.TypeEvents,
				ProtocolVersion: observerproto.Version,
				Events:          batch,
			}
			batch = nil
			if err := s.writeJSON(conn, out); err != nil {
				writeErr <- err
				return
			}
		case <-statsTicker.C:
			every := statsEveryTicks.Load()
			statsTicker.Reset(s.statsInterval(every))
			if every <= 0 {
				continue
			}
			reqCtx, cancel := context.WithTimeout(ctx, time.Second)
			stats, err := s.mgr.RequestStats(reqCtx)
			cancel()
			if err != nil {
				continue
			}
			out := observerproto.StatsMsg{
				Type:            observerproto.TypeStats,
				ProtocolVersion: observerproto.Version,
				Stats:           stats,
			}
			if err := s.writeJSON(conn, out); err != nil {
				writeErr <- err
				return
			}
		}
	}
}

// statsInterval converts a tick count into a wall-clock period; disabled
// sessions poll slowly just to notice re-enables.
func (s *Server) statsInterval(everyTicks int64) time.Duration {
	if everyTicks <= 0 {
		return time.Second
	}
	hz := s.params.TickRateHz
	if hz <= 0 {
		hz = 30
	}
	return time.Duration(everyTicks) * time.Second / time.Duration(hz)
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
