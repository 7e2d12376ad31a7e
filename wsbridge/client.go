package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"conductor/config"
	"conductor/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 30 * time.Second
	sendBuffer     = 256
)

var (
	ErrNotConnected     = errors.New("relay not connected")
	ErrSendBufferFull   = errors.New("relay send buffer full")
	ErrConnectionClosed = errors.New("relay connection closed")
)

// Controller is the part of the orchestrator runtime the relay may drive.
// *orchestrator.Runtime satisfies it.
type Controller interface {
	List() []orchestrator.AgentRecord
	ViewLog(agentID string) (orchestrator.LogView, error)
	Cancel(ctx context.Context, agentID string) error
}

// RequestHandler processes an incoming request from the relay and returns a response
type RequestHandler func(ctx context.Context, env *Envelope) (*Envelope, error)

// Options configures a Client. Relay is required; Controller may be set
// later with SetController.
type Options struct {
	Relay      *config.RelayConfig
	Config     *config.Config
	Controller Controller
	SessionID  string
	Version    string
	Logger     hclog.Logger
}

// connection is one dialed WebSocket with its pumps
type connection struct {
	ws   *websocket.Conn
	send chan []byte
	// done is closed when the read pump exits
	done chan struct{}
}

// Client manages the WebSocket connection from a conductor session to a relay
type Client struct {
	relay     *config.RelayConfig
	cfg       *config.Config
	ctrl      Controller
	sessionID string
	version   string
	logger    hclog.Logger

	mu         sync.Mutex
	conn       *connection
	pending    map[string]chan *Envelope // requestID → response channel
	instanceID string                    // assigned by the relay on register

	handlers map[MessageType]RequestHandler

	// Lifecycle
	ctx  context.Context
	stop context.CancelFunc
}

func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		relay:     opts.Relay,
		cfg:       opts.Config,
		ctrl:      opts.Controller,
		sessionID: opts.SessionID,
		version:   opts.Version,
		logger:    opts.Logger.Named("wsbridge"),
		pending:   make(map[string]chan *Envelope),
		handlers:  make(map[MessageType]RequestHandler),
		ctx:       ctx,
		stop:      stop,
	}
	c.registerHandlers()
	return c
}

// Connect dials the relay, starts the read/write pumps and registers
func (c *Client) Connect() error {
	if err := c.ctx.Err(); err != nil {
		return ErrConnectionClosed
	}
	c.logger.Info("connecting to relay", "url", c.relay.URL)

	ws, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.relay.URL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	conn := &connection{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Start pumps first, register() needs them to send/receive messages
	go c.readPump(conn)
	go c.writePump(conn)

	if err := c.register(); err != nil {
		ws.Close()
		return fmt.Errorf("register: %w", err)
	}

	c.logger.Info("registered with relay", "instance_id", c.InstanceID())
	return nil
}

// Run blocks until ctx is cancelled. A dropped connection ends Run with
// ErrConnectionClosed unless auto_reconnect is set, in which case it
// redials every reconnect_interval seconds.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-conn.done:
			}
		}

		if !c.relay.AutoReconnect {
			return ErrConnectionClosed
		}
		c.logger.Warn("relay connection lost, reconnecting", "interval_seconds", c.relay.ReconnectInterval)

		if err := c.reconnect(ctx); err != nil {
			return nil
		}
	}
}

// reconnect retries Connect until it succeeds or ctx ends
func (c *Client) reconnect(ctx context.Context) error {
	interval := time.Duration(c.relay.ReconnectInterval) * time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		err := c.Connect()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConnectionClosed) {
			return err
		}
		c.logger.Warn("relay reconnect failed", "error", err)
	}
}

// Close shuts down the client
func (c *Client) Close() {
	c.stop()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.ws.Close()
	}
}

// Connected reports whether a registered connection is up
func (c *Client) Connected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	select {
	case <-conn.done:
		return false
	default:
		return true
	}
}

// SetController attaches the runtime that answers relay requests
func (c *Client) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl = ctrl
}

func (c *Client) controller() (Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl == nil {
		return nil, errors.New("session not ready")
	}
	return c.ctrl, nil
}

// InstanceID returns the ID assigned by the relay
func (c *Client) InstanceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceID
}

func (c *Client) register() error {
	req, err := NewRequest(TypeRegister, &RegisterPayload{
		InstanceName: c.relay.InstanceName,
		Version:      c.version,
		SessionID:    c.sessionID,
		Instance:     ConfigToInstanceInfo(c.cfg),
	})
	if err != nil {
		return err
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}

	var ack RegisterAckPayload
	if err := DecodePayload(resp, &ack); err != nil {
		return fmt.Errorf("decode register ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("registration rejected: %s", ack.Reason)
	}

	c.mu.Lock()
	c.instanceID = ack.InstanceID
	c.mu.Unlock()
	return nil
}

func (c *Client) readPump(conn *connection) {
	defer func() {
		close(conn.done)
		conn.ws.Close()
	}()

	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("relay read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid message from relay", "error", err)
			continue
		}

		c.dispatch(conn, &env)
	}
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case message := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.done:
			return
		case <-c.ctx.Done():
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) dispatch(conn *connection, env *Envelope) {
	// Check if this is a response to a pending request
	if env.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}

	if env.Type == TypeHeartbeat {
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, &HeartbeatAckPayload{})
		c.enqueue(conn, ack)
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		c.logger.Warn("unhandled message type from relay", "type", env.Type)
		errResp, _ := NewError(env.RequestID, "unknown_type", fmt.Sprintf("unsupported message type %q", env.Type))
		c.enqueue(conn, errResp)
		return
	}

	// cancel waits out a grace period, so requests never run on the read pump
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
		defer cancel()

		resp, err := handler(ctx, env)
		if err != nil {
			errResp, _ := NewError(env.RequestID, errorCode(err), err.Error())
			c.enqueue(conn, errResp)
			return
		}
		if resp != nil {
			c.enqueue(conn, resp)
		}
	}()
}

func errorCode(err error) string {
	if errors.Is(err, orchestrator.ErrAgentNotFound) {
		return "not_found"
	}
	return "handler_error"
}

// enqueue queues an envelope without blocking
func (c *Client) enqueue(conn *connection, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case conn.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendEvent sends a one-way envelope. It never blocks: events are dropped
// while disconnected or when the send buffer is full.
func (c *Client) SendEvent(env *Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.Connected() {
		return ErrNotConnected
	}
	return c.enqueue(conn, env)
}

func (c *Client) sendRequest(env *Envelope) (*Envelope, error) {
	c.mu.Lock()
	conn := c.conn
	ch := make(chan *Envelope, 1)
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
	}()

	if err := c.enqueue(conn, env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-conn.done:
		return nil, ErrConnectionClosed
	case <-timer.C:
		return nil, fmt.Errorf("request timed out")
	}
}
