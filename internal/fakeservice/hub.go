package fakeservice

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub fans frames out to the subscribers of each root comment
type hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*subscriber]bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newHub() *hub {
	return &hub{rooms: make(map[int64]map[*subscriber]bool)}
}

func (h *hub) add(rootID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[rootID]
	if !ok {
		room = make(map[*subscriber]bool)
		h.rooms[rootID] = room
	}
	room[sub] = true
}

func (h *hub) remove(rootID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[rootID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, rootID)
		}
	}
	sub.close()
}

func (h *hub) count(rootID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[rootID])
}

func (h *hub) broadcastReply(rootID int64, c *models.Comment) {
	data, err := json.Marshal(c)
	if err != nil {
		logger.Errorf("fakeservice: failed to encode reply %d: %v", c.ID, err)
		return
	}
	frame, err := json.Marshal(models.LiveMessage{Type: models.LiveMessageNewReply, Data: data})
	if err != nil {
		logger.Errorf("fakeservice: failed to encode frame: %v", err)
		return
	}
	h.broadcast(rootID, frame)
}

func (h *hub) broadcast(rootID int64, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[rootID] {
		select {
		case sub.send <- frame:
		default:
			logger.Warnf("fakeservice: dropping frame for slow subscriber of %d", rootID)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for rootID, room := range h.rooms {
		for sub := range room {
			sub.close()
		}
		delete(h.rooms, rootID)
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// writePump delivers queued frames until the subscriber is closed
func (s *subscriber) writePump() {
	defer s.conn.Close()
	for frame := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}

// readPump drains client frames so control messages are processed, and
// unregisters the subscriber when the peer goes away
func (s *subscriber) readPump(h *hub, rootID int64) {
	defer h.remove(rootID, s)
	s.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleLive upgrades /ws/comments/:id/ and subscribes the caller to new
// replies under that root comment. Anonymous callers are accepted and then
// closed with 4001.
func (s *Service) handleLive(c *gin.Context) {
	rootID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid comment id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("fakeservice: websocket upgrade failed: %v", err)
		return
	}

	user, err := s.validate(c.Query("token"), tokenAccess)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(models.CloseUnauthorized, "authentication required"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	s.hub.add(rootID, sub)
	logger.WebSocket("comment_"+c.Param("id"), "subscribe "+user.Username)

	go sub.writePump()
	go sub.readPump(s.hub, rootID)
}
