// Package ws streams chunk rebuild batches to renderer clients over websockets.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"dynlights.ai/internal/protocol"
	"dynlights.ai/internal/sim/lighting/mode"
	"dynlights.ai/internal/sim/runner"
)

const (
	helloWait  = 10 * time.Second
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Config struct {
	WorldID    string
	ChunkSize  int
	TickRateHz int
	Mode       mode.Mode

	MaxClients    int
	SendQueueSize int

	Logger *log.Logger
}

// Hub fans REBUILD batches out to connected renderers. It is a runner.TickSink.
type Hub struct {
	cfg    Config
	logger *log.Logger

	upgrader    websocket.Upgrader
	helloSchema *jsonschema.Schema
	modeSchema  *jsonschema.Schema

	control chan mode.Mode

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	nextID   atomic.Uint64
	lastTick atomic.Uint64
	curMode  atomic.Int32
	dropped  atomic.Uint64
}

type client struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	final bool

	closeOnce sync.Once
}

func NewHub(cfg Config) (*Hub, error) {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	hello, err := protocol.CompileSchema("hello.schema.json")
	if err != nil {
		return nil, err
	}
	modeSchema, err := protocol.CompileSchema("mode.schema.json")
	if err != nil {
		return nil, err
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Renderers are local tools, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		helloSchema: hello,
		modeSchema:  modeSchema,
		control:     make(chan mode.Mode, 8),
		clients:     map[*client]struct{}{},
	}
	h.curMode.Store(int32(cfg.Mode))
	return h, nil
}

// Control carries MODE requests from renderers to the runner.
func (h *Hub) Control() <-chan mode.Mode { return h.control }

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxClients > 0 && h.Len() >= h.cfg.MaxClients {
		http.Error(w, protocol.ErrBusy, http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade: %v", err)
		return
	}

	hello, err := h.readHello(conn)
	if err != nil {
		h.rejectAndClose(conn, protocol.ErrProtoBadRequest, err.Error())
		return
	}
	if hello.ProtocolVersion != protocol.Version {
		h.rejectAndClose(conn, protocol.ErrProtoVersion, fmt.Sprintf("server speaks %s", protocol.Version))
		return
	}

	c := &client{
		id:    fmt.Sprintf("R%d", h.nextID.Add(1)),
		conn:  conn,
		send:  make(chan []byte, h.cfg.SendQueueSize),
		final: hello.Final,
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		WorldID:         h.cfg.WorldID,
		ClientID:        c.id,
		ChunkSize:       h.cfg.ChunkSize,
		TickRateHz:      h.cfg.TickRateHz,
		Mode:            mode.Mode(h.curMode.Load()).String(),
		Tick:            h.lastTick.Load(),
	}
	// Registered before WELCOME so no batch after the advertised tick is missed.
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(welcome); err != nil {
		h.unregister(c)
		_ = conn.Close()
		return
	}
	h.logger.Printf("renderer connected id=%s name=%s", c.id, hello.ClientName)

	go h.writePump(c)
	h.readPump(c)
}

// WriteTick broadcasts the tick's rebuild batch. Clients whose send queue is
// full are disconnected; a renderer that misses a batch must resync anyway.
func (h *Hub) WriteTick(entry runner.TickLogEntry) error {
	h.lastTick.Store(entry.Tick)
	if m, err := mode.Parse(entry.Mode); err == nil && entry.Mode != "" {
		h.curMode.Store(int32(m))
	}
	if len(entry.Rebuilds) == 0 && !entry.Final {
		return nil
	}
	msg := protocol.RebuildMsg{
		Type:            protocol.TypeRebuild,
		ProtocolVersion: protocol.Version,
		Tick:            entry.Tick,
		Chunks:          entry.Rebuilds,
		Final:           entry.Final,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if entry.Final && !c.final {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
			h.removeLocked(c)
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) readHello(conn *websocket.Conn) (protocol.HelloMsg, error) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return hello, err
	}
	if err := protocol.ValidateJSON(h.helloSchema, raw); err != nil {
		return hello, fmt.Errorf("HELLO: %w", err)
	}
	if err := json.Unmarshal(raw, &hello); err != nil {
		return hello, err
	}
	return hello, nil
}

func (h *Hub) rejectAndClose(conn *websocket.Conn, code, msg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(protocol.NewError(code, msg))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
	_ = conn.Close()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closeOnce.Do(func() { close(c.send) })
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Printf("renderer disconnected id=%s", c.id)
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Printf("read id=%s: %v", c.id, err)
			}
			return
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeMode:
			if err := protocol.ValidateJSON(h.modeSchema, raw); err != nil {
				h.reply(c, protocol.NewError(protocol.ErrUnknownMode, err.Error()))
				continue
			}
			var msg protocol.ModeMsg
			_ = json.Unmarshal(raw, &msg)
			m, err := mode.Parse(msg.Mode)
			if err != nil {
				h.reply(c, protocol.NewError(protocol.ErrUnknownMode, err.Error()))
				continue
			}
			select {
			case h.control <- m:
			default:
				h.reply(c, protocol.NewError(protocol.ErrBusy, "mode change pending"))
			}
		default:
			h.reply(c, protocol.NewError(protocol.ErrBadRequest, "unexpected message type "+base.Type))
		}
	}
}

func (h *Hub) reply(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
