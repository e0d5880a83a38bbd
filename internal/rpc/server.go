package rpc

import (
	"encoding/json"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/uinb/galois-go/internal/auth"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
)

// Handler executes one parsed command and returns the bytes to reply
// with (empty on success with no payload, non-empty JSON otherwise).
// isError tells the frame writer to set the error flag.
type Handler func(cmd command.Command) (payload []byte, isError bool)

// Server accepts framed TCP sessions, submits parsed commands to
// Handler, and replies in req_id order on the originating session.
// Session 0 is reserved: Broadcast pushes to every connected session,
// matching the original implementation's fill/depth fan-out.
type Server struct {
	log     *zap.Logger
	handler Handler
	domain  auth.Domain

	mu       sync.RWMutex
	sessions map[uint64]chan wireMessage
	nextId   uint64
}

type wireMessage struct {
	reqId   uint64
	payload []byte
	isError bool
}

func NewServer(log *zap.Logger, handler Handler) *Server {
	return &Server{
		log:      log,
		handler:  handler,
		domain:   auth.DefaultDomain(),
		sessions: make(map[uint64]chan wireMessage),
		nextId:   1,
	}
}

// Serve accepts connections on addr until the listener is closed.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.Info("rpc server listening", zap.String("addr", addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.mu.Lock()
		sessionId := s.nextId
		s.nextId++
		out := make(chan wireMessage, 64)
		s.sessions[sessionId] = out
		s.mu.Unlock()

		go s.writeLoop(conn, sessionId, out)
		go s.readLoop(conn, sessionId)
	}
}

// Broadcast pushes payload to every connected session, used for fill
// and depth updates that aren't a reply to any one req_id.
func (s *Server) Broadcast(reqId uint64, payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, out := range s.sessions {
		select {
		case out <- wireMessage{reqId: reqId, payload: payload}:
		default:
			s.log.Warn("rpc: session send buffer full, dropping broadcast")
		}
	}
}

// Reply pushes payload to exactly one session, used for the terminal
// response to a session-originated command.
func (s *Server) Reply(sessionId, reqId uint64, payload []byte, isError bool) {
	s.mu.RLock()
	out, ok := s.sessions[sessionId]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case out <- wireMessage{reqId: reqId, payload: payload, isError: isError}:
	default:
		s.log.Warn("rpc: session send buffer full, dropping reply", zap.Uint64("session", sessionId))
	}
}

func (s *Server) writeLoop(conn net.Conn, sessionId uint64, out chan wireMessage) {
	defer conn.Close()
	for msg := range out {
		if err := WriteMessage(conn, msg.reqId, msg.payload, msg.isError); err != nil {
			s.log.Debug("rpc: write failed, closing session", zap.Uint64("session", sessionId), zap.Error(err))
			return
		}
	}
}

func (s *Server) readLoop(conn net.Conn, sessionId uint64) {
	defer s.closeSession(sessionId)
	for {
		reqId, payload, _, err := ReadMessage(conn)
		if err != nil {
			return
		}
		var cmd command.Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.Reply(sessionId, reqId, nil, true)
			continue
		}
		if auth.RequiresSignature(cmd) {
			if err := auth.Verify(s.domain, cmd); err != nil {
				s.log.Debug("rpc: signature verification failed, closing session",
					zap.Uint64("session", sessionId), zap.Error(err))
				s.Reply(sessionId, reqId, nil, true)
				return
			}
		}
		cmd.Session = sessionIdToUser(sessionId)
		cmd.ReqId = reqId
		reply, isError := s.handler(cmd)
		s.Reply(sessionId, reqId, reply, isError)
	}
}

func (s *Server) closeSession(sessionId uint64) {
	s.mu.Lock()
	out, ok := s.sessions[sessionId]
	delete(s.sessions, sessionId)
	s.mu.Unlock()
	if ok {
		close(out)
	}
}

// sessionIdToUser stores the raw session id in the low 8 bytes of a
// UserId-shaped value so Command.Session keeps one type regardless of
// whether it was set by the RPC layer or a durable record. Not a real
// account identity: only the RPC layer ever reads it.
func sessionIdToUser(id uint64) (u core.UserId) {
	for i := 0; i < 8; i++ {
		u[31-i] = byte(id >> (8 * i))
	}
	return u
}
