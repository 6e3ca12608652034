package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/pyide/observability"
)

const writeTimeout = 10 * time.Second

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
		},
	}
}

// handleWebSocket bridges one terminal client to the interpreter.
func (s *Server) handleWebSocket(c *gin.Context) {
	up := s.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	cl := s.hub.add(conn)
	defer s.hub.remove(cl)

	remote := conn.RemoteAddr().String()
	s.observe(ctx, EventConnect, observability.LevelInfo, map[string]any{"remote": remote})
	defer s.observe(ctx, EventDisconnect, observability.LevelInfo, map[string]any{"remote": remote})

	go s.writePump(cl)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := s.dispatch(ctx, msg); err != nil {
			s.hub.reply(cl, Message{Type: "reply", Text: err.Error()})
		}
	}
}

func (s *Server) writePump(cl *client) {
	ctx := context.Background()
	for {
		msg, err := cl.out.Receive(ctx)
		if err != nil {
			cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
		cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteJSON(msg); err != nil {
			s.hub.remove(cl)
			cl.conn.Close()
			return
		}
	}
}
