package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskhive-dev/taskhive/internal/apperrors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// ProjectAuthorizer returns nil when userID may watch projectID.
type ProjectAuthorizer func(ctx context.Context, userID, projectID uint) error

// Server upgrades HTTP requests into registry connections.
type Server struct {
	registry  *Registry
	authorize ProjectAuthorizer
	upgrader  websocket.Upgrader
}

func NewServer(registry *Registry, allowedOrigins []string, authorize ProjectAuthorizer) *Server {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &Server{
		registry:  registry,
		authorize: authorize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin.
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// ServeWS runs one websocket session for the already-authenticated identity
// until the peer goes away or the registry shuts down.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request, identity uint) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn, err := s.registry.Connect(identity)
	if err != nil {
		log.Printf("WebSocket rejected for user %d: %v", identity, err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	defer func() {
		s.registry.Disconnect(conn)
		log.Printf("WebSocket connection %s closed for user %d", conn.ID, identity)
	}()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		ws.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.writePump(ws, conn)

	s.reply(conn, "connected", map[string]string{
		"connection_id": conn.ID,
		"message":       "WebSocket connection established",
	})

	ctx := r.Context()

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for connection %s: %v", conn.ID, err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := s.HandleIntent(ctx, conn, message); err != nil {
			s.reply(conn, "error", map[string]string{"error": apperrors.Message(err, "Request failed")})
		}
	}
}

// HandleIntent applies one client-declared intent to conn.
func (s *Server) HandleIntent(ctx context.Context, conn *Connection, message []byte) error {
	var in inboundFrame
	if err := json.Unmarshal(message, &in); err != nil {
		return apperrors.InvalidState("Malformed message")
	}

	switch in.Event {
	case IntentJoinUser, IntentJoinProject, IntentLeaveProject:
	default:
		return apperrors.InvalidState("Unknown event %q", in.Event)
	}

	id, err := parseID(in.Data)
	if err != nil {
		return apperrors.InvalidState("%s: %v", in.Event, err)
	}

	switch in.Event {
	case IntentJoinUser:
		if err := s.registry.JoinUserRoom(conn, id); err != nil {
			return err
		}
	case IntentJoinProject:
		if s.authorize != nil {
			if err := s.authorize(ctx, conn.Identity, id); err != nil {
				return err
			}
		}
		if err := s.registry.JoinProjectRoom(conn, id); err != nil {
			return err
		}
	case IntentLeaveProject:
		s.registry.LeaveProjectRoom(conn, id)
	}

	s.reply(conn, in.Event, map[string]any{"id": id, "ok": true})

	return nil
}

func (s *Server) reply(conn *Connection, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		log.Printf("Failed to encode %s reply: %v", event, err)
		return
	}
	conn.enqueue(frame)
}

func (s *Server) writePump(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-conn.Frames():
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for connection %s: %v", conn.ID, err)
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("Failed to write to connection %s: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for connection %s: %v", conn.ID, err)
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for connection %s: %v", conn.ID, err)
				return
			}
		}
	}
}
