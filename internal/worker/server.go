package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartengine/internal/indicator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Datasets travel inline, so frames are far larger than control traffic.
	maxMessageSize = 8 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the engine over websocket. Every connection behaves as a
// private worker: it receives the init announcement, then one response per
// message in arrival order.
type Server struct {
	engine *indicator.Engine

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// NewServer creates a websocket server around engine.
func NewServer(engine *indicator.Engine) *Server {
	return &Server{engine: engine, sessions: make(map[*session]struct{})}
}

// ServeHTTP upgrades the request and serves the connection until the peer
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[indworker] ws upgrade error: %v", err)
		return
	}
	sess := &session{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	log.Printf("[indworker] ws client connected: %s", r.RemoteAddr)

	go sess.writePump()
	sess.enqueue(initResponse(s.engine.Supported()))
	sess.readPump(s.engine)

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	log.Printf("[indworker] ws client disconnected: %s", r.RemoteAddr)
}

// Sessions returns the number of connected peers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every open connection.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.close()
	}
}

type session struct {
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) enqueue(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[indworker] encode response %s: %v", resp.TaskID, err)
		return
	}
	select {
	case s.send <- b:
	case <-s.done:
	}
}

func (s *session) readPump(engine *indicator.Engine) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[indworker] ws read error: %v", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[indworker] bad message: %v", err)
			continue
		}
		s.enqueue(Handle(engine, msg))
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
