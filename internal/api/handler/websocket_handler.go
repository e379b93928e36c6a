package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"campus_parking/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS đã được kiểm soát ở router
	},
}

type spotMessage struct {
	sectionID string
	payload   []byte
}

// WebSocketManager fans committed spot status changes out to every connected client.
// A client may subscribe to one section with ?sectionId=.
type WebSocketManager struct {
	clients    map[*websocket.Conn]string
	register   chan wsClient
	unregister chan *websocket.Conn
	broadcast  chan spotMessage
	done       chan struct{}
	mutex      sync.RWMutex
}

type wsClient struct {
	conn      *websocket.Conn
	sectionID string
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]string),
		register:   make(chan wsClient),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan spotMessage, 256),
		done:       make(chan struct{}),
	}
}

// Start runs the hub until ctx is cancelled, then closes every connection.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	defer close(wsm.done)
	for {
		select {
		case <-ctx.Done():
			wsm.mutex.Lock()
			for conn := range wsm.clients {
				conn.Close()
				delete(wsm.clients, conn)
			}
			wsm.mutex.Unlock()
			return

		case client := <-wsm.register:
			wsm.mutex.Lock()
			wsm.clients[client.conn] = client.sectionID
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			log.Debug().Int("total", total).Str("section_id", client.sectionID).Msg("websocket client connected")

		case conn := <-wsm.unregister:
			wsm.mutex.Lock()
			if _, ok := wsm.clients[conn]; ok {
				delete(wsm.clients, conn)
				conn.Close()
			}
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			log.Debug().Int("total", total).Msg("websocket client disconnected")

		case msg := <-wsm.broadcast:
			wsm.mutex.Lock()
			for conn, section := range wsm.clients {
				if section != "" && section != msg.sectionID {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					log.Debug().Err(err).Msg("dropping websocket client")
					conn.Close()
					delete(wsm.clients, conn)
				}
			}
			wsm.mutex.Unlock()
		}
	}
}

// NotifySpotStatus implements service.SpotNotifier. It never blocks the caller.
func (wsm *WebSocketManager) NotifySpotStatus(n domain.SpotStatusNotification) {
	message, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("spot_id", n.SpotID).Msg("could not marshal spot status")
		return
	}

	select {
	case wsm.broadcast <- spotMessage{sectionID: n.SectionID, payload: message}:
	default:
		log.Warn().Str("spot_id", n.SpotID).Msg("broadcast channel is full, dropping spot status")
	}
}

// ClientCount is reported by /healthz.
func (wsm *WebSocketManager) ClientCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients)
}

type WebSocketHandler struct {
	wsManager *WebSocketManager
}

func NewWebSocketHandler(wsManager *WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager}
}

// GET /ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	select {
	case h.wsManager.register <- wsClient{conn: conn, sectionID: c.Query("sectionId")}:
	case <-h.wsManager.done:
		conn.Close()
		return
	}

	// Client chỉ nhận, đọc để phát hiện ngắt kết nối
	go func() {
		defer func() {
			select {
			case h.wsManager.unregister <- conn:
			case <-h.wsManager.done:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Debug().Err(err).Msg("websocket read error")
				}
				return
			}
		}
	}()
}
