// Package signaling implements the presence, pairing, and signal-relay
// server plus the client-side connection to it. The server never inspects
// SDP or ICE contents; it only validates envelopes and forwards payloads.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clipsync/protocol"
)

// Server accepts WebSocket connections and dispatches the signaling
// protocol. All shared state (presence, pairing, rate limits, connection
// maps) is mutated under one mutex, so message handling is effectively
// serialized across connections.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	presence *Presence
	pairing  *PairingCodes
	limiter  *RateLimiter
	clients  map[*serverClient]struct{}
	byDevice map[string]*serverClient

	nextConnID atomic.Uint64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type serverClient struct {
	id   uint64
	conn *websocket.Conn

	writeMu sync.Mutex

	// deviceID is set by hello; guarded by Server.mu.
	deviceID string
}

// Listen starts the signaling server on the given TCP address.
func Listen(address string) (*Server, error) {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", address, err)
	}

	server := &Server{
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		presence: NewPresence(),
		pairing:  NewPairingCodes(),
		limiter:  NewRateLimiter(DefaultSignalRateWindow, DefaultSignalRateLimit),
		clients:  make(map[*serverClient]struct{}),
		byDevice: make(map[string]*serverClient),
		closed:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleUpgrade)
	server.httpServer = &http.Server{Handler: mux}

	server.wg.Add(1)
	go func() {
		defer server.wg.Done()
		if err := server.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case <-server.closed:
			default:
				log.Printf("signaling: serve error: %v", err)
			}
		}
	}()

	return server, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL returns the ws:// URL clients should dial.
func (s *Server) URL() string {
	return "ws://" + s.listener.Addr().String()
}

// Close stops accepting connections, closes all sockets, and waits for
// in-flight message handling to finish.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		closeErr = s.httpServer.Close()

		s.mu.Lock()
		for client := range s.clients {
			_ = client.conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return closeErr
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("signaling: upgrade failed: %v", err)
		return
	}

	client := &serverClient{
		id:   s.nextConnID.Add(1),
		conn: conn,
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(client)
}

func (s *Server) readLoop(client *serverClient) {
	defer s.wg.Done()
	defer s.handleClose(client)

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(client, payload)
	}
}

// handleMessage dispatches one raw frame. All mutation happens under s.mu so
// cross-connection steps (pairing completion, relay) are atomic with respect
// to disconnects.
func (s *Server) handleMessage(client *serverClient, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgType, err := protocol.DecodeMessageType(payload)
	if err != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "message must be JSON with a type field")
		return
	}

	switch msgType {
	case protocol.TypeHello:
		s.handleHello(client, payload)
	case protocol.TypeHeartbeat:
		s.handleHeartbeat(client, payload)
	case protocol.TypeListDevices:
		s.sendDevicesUpdate(client)
	case protocol.TypePairCreate:
		s.handlePairCreate(client, payload)
	case protocol.TypePairJoin:
		s.handlePairJoin(client, payload)
	case protocol.TypeSignal:
		s.handleSignal(client, payload)
	default:
		s.sendError(client, protocol.ErrCodeInvalidMessage, fmt.Sprintf("unsupported message type %q", msgType))
	}
}

func (s *Server) handleHello(client *serverClient, payload []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "invalid hello message")
		return
	}

	s.presence.Register(protocol.DeviceInfo{
		DeviceID:   msg.DeviceID,
		DeviceName: msg.DeviceName,
		Platform:   msg.Platform,
		PublicKey:  msg.PublicKey,
	})

	// A second hello for the same device id supersedes the previous socket.
	if previous, ok := s.byDevice[msg.DeviceID]; ok && previous != client {
		previous.deviceID = ""
	}
	client.deviceID = msg.DeviceID
	s.byDevice[msg.DeviceID] = client

	s.broadcastDevicesUpdate()
}

func (s *Server) handleHeartbeat(client *serverClient, payload []byte) {
	var msg protocol.HeartbeatMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "invalid heartbeat message")
		return
	}

	s.presence.Touch(msg.DeviceID, msg.TS)
}

func (s *Server) handlePairCreate(client *serverClient, payload []byte) {
	var msg protocol.PairCreateMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "invalid pair_create message")
		return
	}

	code, expiresAt, err := s.pairing.Create(msg.DeviceID)
	if err != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "failed to create pair code")
		return
	}

	s.sendJSON(client, protocol.PairCreatedMessage{
		Type:      protocol.TypePairCreated,
		DeviceID:  msg.DeviceID,
		Code:      code,
		ExpiresAt: expiresAt,
	})
}

func (s *Server) handlePairJoin(client *serverClient, payload []byte) {
	var msg protocol.PairJoinMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "invalid pair_join message")
		return
	}

	creatorID, err := s.pairing.Join(msg.Code, msg.DeviceID)
	switch {
	case errors.Is(err, ErrPairCodeNotFound):
		s.sendError(client, protocol.ErrCodePairCodeNotFound, "pair code not found")
		return
	case errors.Is(err, ErrPairCodeExpired):
		s.sendError(client, protocol.ErrCodePairCodeExpired, "pair code expired")
		return
	case err != nil:
		s.sendError(client, protocol.ErrCodeInvalidMessage, "pair join failed")
		return
	}

	creator, ok := s.byDevice[creatorID]
	if !ok {
		s.sendError(client, protocol.ErrCodePeerNotConnected, "pair creator not connected")
		return
	}

	paired := protocol.PairPairedMessage{
		Type: protocol.TypePairPaired,
		A:    creatorID,
		B:    msg.DeviceID,
	}
	s.sendJSON(creator, paired)
	s.sendJSON(client, paired)
}

func (s *Server) handleSignal(client *serverClient, payload []byte) {
	var msg protocol.SignalMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Validate() != nil {
		s.sendError(client, protocol.ErrCodeInvalidMessage, "invalid signal message")
		return
	}

	if !s.limiter.Allow(client.id, time.Now().UnixMilli()) {
		s.sendError(client, protocol.ErrCodeRateLimited, "signal rate limit exceeded")
		return
	}

	target, ok := s.byDevice[msg.To]
	if !ok {
		s.sendError(client, protocol.ErrCodePeerNotConnected, "target device not connected")
		return
	}

	s.sendJSON(target, msg)
}

func (s *Server) handleClose(client *serverClient) {
	_ = client.conn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, client)
	s.limiter.Forget(client.id)

	if client.deviceID == "" {
		return
	}
	if current, ok := s.byDevice[client.deviceID]; ok && current == client {
		delete(s.byDevice, client.deviceID)
	}
	s.presence.MarkOffline(client.deviceID)
	s.broadcastDevicesUpdate()
}

// broadcastDevicesUpdate sends the full device list to every connected
// socket. Caller must hold s.mu.
func (s *Server) broadcastDevicesUpdate() {
	update := protocol.DevicesUpdateMessage{
		Type:    protocol.TypeDevicesUpdate,
		Devices: s.presence.Snapshot(),
	}
	for client := range s.clients {
		s.sendJSON(client, update)
	}
}

// sendDevicesUpdate replies to one socket only. Caller must hold s.mu.
func (s *Server) sendDevicesUpdate(client *serverClient) {
	s.sendJSON(client, protocol.DevicesUpdateMessage{
		Type:    protocol.TypeDevicesUpdate,
		Devices: s.presence.Snapshot(),
	})
}

func (s *Server) sendError(client *serverClient, code, message string) {
	s.sendJSON(client, protocol.ErrorMessage{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
}

// sendJSON writes one message to a socket. A send to a since-closed socket
// is a no-op, not a crash; the read loop handles the disconnect.
func (s *Server) sendJSON(client *serverClient, message any) {
	payload, err := protocol.EncodeJSON(message)
	if err != nil {
		log.Printf("signaling: encode message: %v", err)
		return
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("signaling: send to conn %d failed: %v", client.id, err)
	}
}
