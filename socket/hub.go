package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"editpdf/config"
	"editpdf/internal/feedback/model"
	"editpdf/internal/overlay"
	"editpdf/pkg/logger"

	"github.com/gorilla/websocket"
)

// Backend is what the hub needs from the feedback service.
type Backend interface {
	Role(ctx context.Context, gradeID int64, userID string) (string, error)
	DocumentInfo(ctx context.Context, gradeID int64) (*model.DocumentInfo, error)
	LoadPage(ctx context.Context, gradeID int64, pageNo int) ([]overlay.Record, error)
	SavePage(ctx context.Context, userID, origin string, gradeID int64, pageNo int, records []overlay.Record) error
}

// Hub groups the editors of a grade into a room. Each client runs its own
// editor session; the hub only tracks who is in a room and fans out page
// updates and presence.
type Hub struct {
	Rooms      map[int64]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	Presence   map[int64]map[string]Presence // gradeID -> clientID -> presence

	backend  Backend
	editor   config.EditorConfig
	upgrader websocket.Upgrader
	mu       sync.Mutex
	// clients counts connections whose editor has not finished closing.
	clients sync.WaitGroup
}

func NewHub(backend Backend, editor config.EditorConfig, cors config.CORSConfig) *Hub {
	return &Hub{
		Rooms:      make(map[int64]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Presence:   make(map[int64]map[string]Presence),
		backend:    backend,
		editor:     editor,
		upgrader:   newUpgrader(cors.Origins),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.GradeID] == nil {
				h.Rooms[client.GradeID] = make(map[*Client]bool)
				h.Presence[client.GradeID] = make(map[string]Presence)
			}
			h.Rooms[client.GradeID][client] = true
			h.Presence[client.GradeID][client.ID] = Presence{
				ClientID: client.ID,
				UserID:   client.UserID,
				Role:     client.Role,
				JoinedAt: time.Now(),
			}
			h.mu.Unlock()
			logger.Sugar.Infof("User %s joined grade %d as %s", client.UserID, client.GradeID, client.Role)

			h.broadcastPresenceUpdate(client.GradeID)

		case client := <-h.Unregister:
			h.mu.Lock()
			gradeID := client.GradeID
			remaining := false
			if _, ok := h.Rooms[gradeID][client]; ok {
				delete(h.Rooms[gradeID], client)
				delete(h.Presence[gradeID], client.ID)
				if len(h.Rooms[gradeID]) == 0 {
					delete(h.Rooms, gradeID)
					delete(h.Presence, gradeID)
					logger.Sugar.Infof("Closed empty room of grade %d", gradeID)
				} else {
					remaining = true
				}
			}
			h.mu.Unlock()

			if remaining {
				h.broadcastPresenceUpdate(gradeID)
			}

		case msg := <-h.Broadcast:
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.GradeID]))
			for client := range h.Rooms[msg.GradeID] {
				if client.ID != msg.ClientID {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			if msg.Type == PageUpdateType {
				var p savePayload
				if err := json.Unmarshal(msg.Payload, &p); err != nil {
					logger.Sugar.Errorf("Error unmarshalling page update: %v", err)
					continue
				}
				// Reloading hits the database, keep it off the hub goroutine.
				for _, client := range clientsToSend {
					go client.reload(p.Page)
				}
				continue
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				continue
			}
			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// Closing the connection ends the read pump, which unregisters the client.
					logger.Sugar.Warnf("Client %s's send buffer is full. Disconnecting.", client.ID)
					client.Conn.Close()
				}
			}
		}
	}
}

// PageChanged tells every editor of the grade except origin to reload a page.
func (h *Hub) PageChanged(gradeID int64, pageNo int, origin string) {
	payload, _ := json.Marshal(savePayload{Page: pageNo})
	h.Broadcast <- WSMessage{Type: PageUpdateType, GradeID: gradeID, ClientID: origin, Payload: payload}
}

// setPage records the page a client is looking at.
func (h *Hub) setPage(c *Client, pageNo int) {
	h.mu.Lock()
	p, ok := h.Presence[c.GradeID][c.ID]
	if ok {
		p.Page = pageNo
		h.Presence[c.GradeID][c.ID] = p
	}
	h.mu.Unlock()
	if ok {
		h.broadcastPresenceUpdate(c.GradeID)
	}
}

// Shutdown disconnects every client and waits until their sessions have
// closed and saved the comment being edited, or ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for gradeID, clients := range h.Rooms {
		for client := range clients {
			client.Conn.Close()
		}
		logger.Sugar.Infof("Disconnected %d editors of grade %d", len(clients), gradeID)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.clients.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) broadcastPresenceUpdate(gradeID int64) {
	var statuses []Presence
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[gradeID]; ok {
		statuses = make([]Presence, 0, len(h.Presence[gradeID]))
		for _, status := range h.Presence[gradeID] {
			statuses = append(statuses, status)
		}
		clientsToSend = make([]*Client, 0, len(h.Rooms[gradeID]))
		for client := range h.Rooms[gradeID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(statuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, GradeID: gradeID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- msg:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.ID)
		}
	}
}
