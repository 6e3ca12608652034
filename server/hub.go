package server

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/pyide/controller"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/transport"
)

const clientBuffer = 256

// Message is one websocket frame in either direction. Clients send run,
// execute, stop and restart; the server sends terminal events by their
// protocol names plus "reply" for command failures.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Code string `json:"code,omitempty"`
	File string `json:"file,omitempty"`
}

type client struct {
	conn *websocket.Conn
	out  *transport.Channel[Message]
}

// Hub fans terminal output out to every connected websocket client and
// keeps a short backlog for clients that join late.
type Hub struct {
	observer observability.Observer
	limit    int

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog []Message
}

func NewHub(backlog int, obs observability.Observer) *Hub {
	if obs == nil {
		obs = observability.NoOpObserver{}
	}
	return &Hub{
		observer: obs,
		limit:    backlog,
		clients:  make(map[*client]struct{}),
	}
}

// Callbacks routes controller output to the hub.
func (h *Hub) Callbacks() controller.Callbacks {
	text := func(typ string) func(string) {
		return func(s string) { h.Broadcast(Message{Type: typ, Text: s}) }
	}
	return controller.Callbacks{
		Write:   text("write"),
		Writeln: text("writeln"),
		Error:   text("error"),
		System:  text("system"),
		Lock:    func() { h.Broadcast(Message{Type: "lock"}) },
		Unlock:  func() { h.Broadcast(Message{Type: "unlock"}) },
	}
}

// Broadcast queues msg for every client. A client whose queue is full is
// disconnected rather than allowed to stall the terminal.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 {
		if len(h.backlog) >= h.limit {
			h.backlog = h.backlog[1:]
		}
		h.backlog = append(h.backlog, msg)
	}

	for c := range h.clients {
		if !h.offer(c, msg) {
			delete(h.clients, c)
			c.out.Close()
			observability.Emit(context.Background(), h.observer, EventDropped, observability.LevelWarning, "server.Hub", map[string]any{
				"remote": c.conn.RemoteAddr().String(),
			})
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, out: transport.NewChannel[Message](clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.backlog)-clientBuffer/2, 0)
	for _, msg := range h.backlog[start:] {
		h.offer(c, msg)
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.out.Close()
	}
}

// reply queues msg for one client only.
func (h *Hub) reply(c *client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offer(c, msg)
}

// offer enqueues without blocking. Callers hold h.mu, so the hub is the only
// sender and the length check cannot race another send.
func (h *Hub) offer(c *client, msg Message) bool {
	if c.out.IsClosed() || c.out.QueueLength() >= c.out.BufferSize() {
		return false
	}
	return c.out.Send(context.Background(), msg) == nil
}
