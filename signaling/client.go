package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clipsync/protocol"
)

const (
	// DefaultHeartbeatInterval is how often a connected client reports liveness.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultReconnectDelay is the wait before redialing after a dropped socket.
	DefaultReconnectDelay = 3 * time.Second
)

// ErrNotConnected indicates a send was attempted without an open socket.
var ErrNotConnected = errors.New("signaling: not connected")

// Status is the client connection status.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// ClientCallbacks receives server-to-client messages. Callbacks are invoked
// from the client's read goroutine; nil callbacks are skipped.
type ClientCallbacks struct {
	OnStatusChange  func(Status)
	OnDevicesUpdate func(protocol.DevicesUpdateMessage)
	OnPairCreated   func(protocol.PairCreatedMessage)
	OnPairPaired    func(protocol.PairPairedMessage)
	OnSignal        func(protocol.SignalMessage)
	OnServerError   func(protocol.ErrorMessage)
}

// ClientConfig identifies this device to the signaling server.
type ClientConfig struct {
	ServerURL  string
	DeviceID   string
	DeviceName string
	Platform   string
	PublicKey  string

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Platform == "" {
		c.Platform = PlatformFromGOOS()
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	return c
}

// PlatformFromGOOS maps the running OS to the wire platform enum.
func PlatformFromGOOS() string {
	switch runtime.GOOS {
	case "windows":
		return protocol.PlatformWindows
	case "darwin":
		return protocol.PlatformMac
	default:
		return protocol.PlatformLinux
	}
}

// Client maintains a signaling connection: hello on open, periodic
// heartbeats, and automatic redial after a dropped socket.
type Client struct {
	config    ClientConfig
	callbacks ClientCallbacks

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status

	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates a client; call Connect to dial.
func NewClient(config ClientConfig, callbacks ClientCallbacks) *Client {
	return &Client{
		config:    config.withDefaults(),
		callbacks: callbacks,
		status:    StatusDisconnected,
		closed:    make(chan struct{}),
	}
}

// Connect dials the server, sends hello, and starts the heartbeat and read
// loops. Subsequent disconnects are redialed automatically until Close.
func (c *Client) Connect() error {
	c.setStatus(StatusConnecting)

	conn, err := c.dial()
	if err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}

	c.attach(conn)
	c.wg.Add(1)
	go c.run(conn)
	return nil
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// DeviceID returns this client's device id.
func (c *Client) DeviceID() string {
	return c.config.DeviceID
}

// PairCreate requests a new pairing code.
func (c *Client) PairCreate() error {
	return c.sendJSON(protocol.PairCreateMessage{
		Type:     protocol.TypePairCreate,
		DeviceID: c.config.DeviceID,
	})
}

// PairJoin redeems a pairing code.
func (c *Client) PairJoin(code string) error {
	return c.sendJSON(protocol.PairJoinMessage{
		Type:     protocol.TypePairJoin,
		DeviceID: c.config.DeviceID,
		Code:     code,
	})
}

// ListDevices requests a one-off devices_update reply.
func (c *Client) ListDevices() error {
	return c.sendJSON(protocol.ListDevicesMessage{Type: protocol.TypeListDevices})
}

// SendSignal relays a negotiation payload to a peer device.
func (c *Client) SendSignal(to string, payload protocol.SignalPayload) error {
	return c.sendJSON(protocol.SignalMessage{
		Type:    protocol.TypeSignal,
		To:      to,
		From:    c.config.DeviceID,
		Payload: payload,
	})
}

// Close stops the heartbeat and reconnect loops and closes the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()

		c.wg.Wait()
		c.setStatus(StatusDisconnected)
	})
	return nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server %q: %w", c.config.ServerURL, err)
	}
	return conn, nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	if err := c.sendHello(); err != nil {
		log.Printf("signaling: send hello failed: %v", err)
	}
}

// run owns one socket at a time: it pumps reads and heartbeats until the
// socket drops, then redials until Close.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			c.readLoop(conn)
		}()

		c.heartbeatLoop(readDone)

		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setStatus(StatusDisconnected)

		select {
		case <-c.closed:
			return
		default:
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
		c.attach(conn)
	}
}

func (c *Client) redial() (*websocket.Conn, bool) {
	for {
		select {
		case <-c.closed:
			return nil, false
		case <-time.After(c.config.ReconnectDelay):
		}

		c.setStatus(StatusConnecting)
		conn, err := c.dial()
		if err != nil {
			log.Printf("signaling: reconnect failed: %v", err)
			c.setStatus(StatusDisconnected)
			continue
		}
		return conn, true
	}
}

func (c *Client) heartbeatLoop(readDone <-chan struct{}) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := c.sendJSON(protocol.HeartbeatMessage{
				Type:     protocol.TypeHeartbeat,
				DeviceID: c.config.DeviceID,
				TS:       time.Now().UnixMilli(),
			})
			if err != nil {
				return
			}
		case <-readDone:
			return
		case <-c.closed:
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(payload)
	}
}

func (c *Client) handleMessage(payload []byte) {
	msgType, err := protocol.DecodeMessageType(payload)
	if err != nil {
		log.Printf("signaling: drop unparseable server message: %v", err)
		return
	}

	switch msgType {
	case protocol.TypeDevicesUpdate:
		var msg protocol.DevicesUpdateMessage
		if json.Unmarshal(payload, &msg) == nil && c.callbacks.OnDevicesUpdate != nil {
			c.callbacks.OnDevicesUpdate(msg)
		}
	case protocol.TypePairCreated:
		var msg protocol.PairCreatedMessage
		if json.Unmarshal(payload, &msg) == nil && c.callbacks.OnPairCreated != nil {
			c.callbacks.OnPairCreated(msg)
		}
	case protocol.TypePairPaired:
		var msg protocol.PairPairedMessage
		if json.Unmarshal(payload, &msg) == nil && c.callbacks.OnPairPaired != nil {
			c.callbacks.OnPairPaired(msg)
		}
	case protocol.TypeSignal:
		var msg protocol.SignalMessage
		if json.Unmarshal(payload, &msg) == nil && c.callbacks.OnSignal != nil {
			c.callbacks.OnSignal(msg)
		}
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if json.Unmarshal(payload, &msg) == nil && c.callbacks.OnServerError != nil {
			c.callbacks.OnServerError(msg)
		}
	default:
		log.Printf("signaling: unknown server message type %q", msgType)
	}
}

func (c *Client) sendHello() error {
	return c.sendJSON(protocol.HelloMessage{
		Type:       protocol.TypeHello,
		DeviceID:   c.config.DeviceID,
		DeviceName: c.config.DeviceName,
		Platform:   c.config.Platform,
		PublicKey:  c.config.PublicKey,
	})
}

func (c *Client) sendJSON(message any) error {
	payload, err := protocol.EncodeJSON(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) setStatus(status Status) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()

	if changed && c.callbacks.OnStatusChange != nil {
		c.callbacks.OnStatusChange(status)
	}
}
