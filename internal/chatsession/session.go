// Package chatsession implements the session (spec §4.5): one per
// connected chat client, running a read loop and a write pump over a
// single gorilla/websocket connection.
package chatsession

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/usernameisnull/meridian/internal/store/types"
	"github.com/usernameisnull/meridian/internal/wire"
)

// sendQueueCap is the soft cap on outbound frames (spec §5 backpressure).
// Overflow drops the session rather than silently dropping a frame.
const sendQueueCap = 256

// Dispatcher is whatever routes a decoded client frame — normally
// router.Router, kept as an interface here so chatsession never imports
// router (which itself imports chatsession), avoiding an import cycle, the
// same boundary the teacher draws between session.go and hub.go.
type Dispatcher interface {
	Dispatch(s *Session, msg *wire.ClientMessage)
	SessionClosed(s *Session)
}

// Session is one authenticated, live WebSocket connection.
type Session struct {
	// SID is an internal correlation id for logging only; never sent on
	// the wire.
	SID string

	UserID types.UserID
	Name   string

	ws         *websocket.Conn
	remoteAddr string
	dispatcher Dispatcher

	send chan []byte
	stop chan struct{}

	mu             sync.Mutex
	subscribedChat types.ChatID // 0 = none (spec §3 invariant 2)
	closed         bool
}

// New wraps an upgraded WebSocket connection for an already-authenticated
// user.
func New(ws *websocket.Conn, uid types.UserID, name string, d Dispatcher) *Session {
	return &Session{
		SID:        uuid.NewString(),
		UserID:     uid,
		Name:       name,
		ws:         ws,
		remoteAddr: ws.RemoteAddr().String(),
		dispatcher: d,
		send:       make(chan []byte, sendQueueCap),
		stop:       make(chan struct{}),
	}
}

// SubscribedChat returns the chat this session currently subscribes to, or
// types.NoChat if none (spec §3 invariant 2: at most one at a time).
func (s *Session) SubscribedChat() types.ChatID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribedChat
}

// SetSubscribedChat replaces the session's current subscription field. The
// caller (router) is responsible for the corresponding topic.Registry
// Leave/Join pair.
func (s *Session) SetSubscribedChat(chatID types.ChatID) {
	s.mu.Lock()
	s.subscribedChat = chatID
	s.mu.Unlock()
}

// QueueOut encodes and enqueues a frame. On overflow, the session is
// dropped and disconnected rather than silently losing the frame (spec §5).
func (s *Session) QueueOut(msg *wire.ServerMessage) {
	data, err := wire.Encode(msg)
	if err != nil {
		log.Printf("session %s: encode error: %v", s.SID, err)
		return
	}
	s.QueueOutBytes(data)
}

// QueueOutBytes enqueues an already-encoded frame. Frames enqueued by one
// goroutine are delivered strictly in enqueue order because the channel
// send below and writePump's receive loop preserve FIFO order (spec §5
// "per session, all frames... delivered in enqueue order").
func (s *Session) QueueOutBytes(data []byte) {
	select {
	case s.send <- data:
	default:
		log.Printf("session %s: send queue full, dropping session", s.SID)
		s.Close()
	}
}

// ReadLoop reads one frame at a time until the connection errors, closes,
// or a frame fails to decode, decoding and dispatching each one. Framing
// and decode errors terminate the session rather than being skipped.
func (s *Session) ReadLoop() {
	defer s.cleanUp()
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			log.Printf("session %s: malformed frame, closing: %v", s.SID, err)
			return
		}
		s.dispatcher.Dispatch(s, msg)
	}
}

// WritePump drains the send queue to the transport one frame at a time, in
// FIFO order, until Close is called.
func (s *Session) WritePump() {
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-s.stop:
			return
		}
	}
}

// Close tears down the transport; cleanUp (hub/topic leave) runs once,
// triggered by ReadLoop returning.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.ws.Close()
}

func (s *Session) cleanUp() {
	s.dispatcher.SessionClosed(s)
}
