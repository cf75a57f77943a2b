package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hkmacro/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 64 * 1024
	eventBuffer    = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts requests without an Origin header (non-browser
// clients) and pages served by this server itself. Any site the user
// browses to can reach a loopback listener, so a foreign Origin is refused.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
	default:
		return false
	}
	_, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		return false
	}
	return u.Port() == port
}

// WSManager handles WebSocket connections and broadcasts engine events
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan protocol.Message
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// WebSocketClient represents a connected control client
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan protocol.Message, eventBuffer),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) ensureStarted() {
	m.startOnce.Do(func() { go m.start() })
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

func (m *WSManager) start() {
	events, cancel := m.server.engine.Subscribe(eventBuffer)
	defer cancel()

	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.clientsMu.Unlock()
			log.Printf("WS: New client registered from %s. Total clients: %d", client.ip, n)

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Printf("WS: Client unregistered from %s. Total clients: %d", client.ip, len(m.clients))
			}
			m.clientsMu.Unlock()

		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, err := protocol.New(protocol.TypeEvent, protocol.FromEvent(ev))
			if err != nil {
				log.Printf("WS: Failed to encode event: %v", err)
				continue
			}
			m.broadcastMessage(msg)

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS: Failed to marshal broadcast message: %v", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// Broadcast queues msg for every connected client. The message is dropped
// when the queue is full.
func (m *WSManager) Broadcast(msg protocol.Message) {
	select {
	case m.broadcast <- msg:
	default:
		log.Printf("WS: Broadcast queue full, dropping %s", msg.Type)
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, eventBuffer),
		ip:      r.RemoteAddr,
	}

	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the engine.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply sends msg to this client only, dropping it if the client is gone
// or its buffer is full.
func (c *WebSocketClient) reply(t protocol.MessageType, payload any) {
	msg, err := protocol.New(t, payload)
	if err != nil {
		log.Printf("WS: Failed to encode %s reply: %v", t, err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.manager.clientsMu.RLock()
	defer c.manager.clientsMu.RUnlock()
	if !c.manager.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("WS: Dropping %s reply to slow client %s", t, c.ip)
	}
}

func (c *WebSocketClient) replyError(req protocol.MessageType, err error) {
	c.reply(protocol.TypeError, protocol.ErrorPayload{Request: req, Message: err.Error()})
}

func (c *WebSocketClient) replyStatus() {
	eng := c.manager.server.engine
	info, ok := eng.Current()
	st := protocol.StatusFromInfo(info, ok)
	st.Status = eng.Status().String()
	c.reply(protocol.TypeStatus, st)
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS: Invalid message format: %v", err)
		return
	}

	eng := c.manager.server.engine
	switch msg.Type {
	case protocol.TypeAuth:
		// the upgrade request was already authorized
		log.Printf("WS: Received auth from %s", c.ip)

	case protocol.TypePing:
		c.reply(protocol.TypePing, nil)

	case protocol.TypeStatus:
		c.replyStatus()

	case protocol.TypeExecute:
		var payload protocol.ExecutePayload
		if err := msg.Decode(&payload); err != nil {
			log.Printf("WS: Invalid execute payload: %v", err)
			c.replyError(msg.Type, err)
			return
		}
		log.Printf("WS: Received execute request for '%s' from %s", payload.MacroID, c.ip)
		if _, err := eng.Execute(payload.MacroID, payload.Variables); err != nil {
			c.replyError(msg.Type, err)
		}

	case protocol.TypeStop, protocol.TypePause, protocol.TypeResume:
		var err error
		switch msg.Type {
		case protocol.TypeStop:
			err = eng.Stop()
		case protocol.TypePause:
			err = eng.Pause()
		default:
			err = eng.Resume()
		}
		if err != nil {
			c.replyError(msg.Type, err)
			return
		}
		c.replyStatus()

	default:
		log.Printf("WS: Ignoring message type '%s' from %s", msg.Type, c.ip)
	}
}
