package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"editpdf/internal/feedback/model"
	"editpdf/internal/feedback/service"
	"editpdf/internal/overlay"
	"editpdf/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
	closeTimeout = 5 * time.Second
)

// newUpgrader accepts browsers from the configured origins. Browsers do not
// apply CORS to websocket upgrades, so the origin is checked here. Clients
// that send no Origin header are not browsers and are let through.
func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, origin)
		},
	}
}

// Client is one browser tab editing a grade. Its editor session lives on
// loop; nothing else touches it.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	GradeID int64
	UserID  string
	Role    string
	Send    chan []byte

	ctx     context.Context
	cancel  context.CancelFunc
	loop    *overlay.Loop
	session *overlay.Session
	pages   []model.PageSize
	hovered overlay.TextAnnotation
}

// ServeWs checks membership, loads the submission and upgrades the request.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	gradeID, err := strconv.ParseInt(r.URL.Query().Get("gradeId"), 10, 64)
	if err != nil || gradeID <= 0 {
		http.Error(w, "Missing or invalid gradeId parameter", http.StatusBadRequest)
		return
	}

	role, err := hub.backend.Role(r.Context(), gradeID, userID)
	if err != nil {
		logger.Sugar.Warnf("Connection rejected: user %s on grade %d: %v", userID, gradeID, err)
		if errors.Is(err, service.ErrForbidden) {
			http.Error(w, err.Error(), http.StatusForbidden)
		} else {
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	info, err := hub.backend.DocumentInfo(r.Context(), gradeID)
	if err != nil {
		logger.Sugar.Errorf("Connection rejected: submission of grade %d: %v", gradeID, err)
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, "Failed to open submission", http.StatusInternalServerError)
		}
		return
	}
	pages := make([][]overlay.Record, info.PageCount)
	for i := range pages {
		if pages[i], err = hub.backend.LoadPage(r.Context(), gradeID, i); err != nil {
			logger.Sugar.Errorf("Connection rejected: grade %d page %d: %v", gradeID, i, err)
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:      uuid.NewString(),
		Hub:     hub,
		Conn:    conn,
		GradeID: gradeID,
		UserID:  userID,
		Role:    role,
		Send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
		loop:    overlay.NewLoop(ctx, 64),
		pages:   info.Pages,
	}

	hub.clients.Add(1)
	go client.writePump()
	go client.loop.Run()
	client.loop.Post(func() { client.start(info, pages) })

	client.Hub.Register <- client
	go client.readPump()
}

// start opens the editor session and draws the first page.
func (c *Client) start(info *model.DocumentInfo, pages [][]overlay.Record) {
	editor := c.Hub.editor
	s, err := overlay.NewSession(overlay.Options{
		GradeID:   c.GradeID,
		PageCount: info.PageCount,
		Viewport:  c.pageViewport(0),
		Surface:   &wsSurface{client: c},
		Scheduler: c.loop,
		Saver: overlay.PageSaverFunc(func(ctx context.Context, gradeID int64, pageNo int, records []overlay.Record) error {
			return c.Hub.backend.SavePage(ctx, c.UserID, c.ID, gradeID, pageNo, records)
		}),
		ReadOnly:         c.Role != model.RoleMarker,
		CollapseComments: editor.CollapseComments,
		Delays: overlay.Delays{
			Delete:        editor.DeleteDelayDuration(),
			Collapse:      editor.CollapseDelayDuration(),
			HoverCollapse: editor.HoverCollapseDelayDuration(),
		},
		SaveTimeout: editor.SaveTimeoutDuration(),
		OnSaved: func(pageNo int) {
			c.emit(SavedType, savePayload{Page: pageNo})
		},
		OnSaveError: func(pageNo int, err error) {
			c.emit(SaveFailedType, savePayload{Page: pageNo, Error: err.Error()})
		},
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to open editor for grade %d: %v", c.GradeID, err)
		c.Conn.Close()
		return
	}
	c.session = s

	c.emit(DocumentType, documentPayload{ClientID: c.ID, Role: c.Role, PageCount: info.PageCount, Pages: info.Pages})
	for pageNo, records := range pages {
		if err := s.Load(pageNo, records); err != nil {
			logger.Sugar.Warnf("Skipping stored annotations of grade %d page %d: %v", c.GradeID, pageNo, err)
		}
	}
}

func (c *Client) pageViewport(pageNo int) overlay.Viewport {
	size := c.pages[pageNo]
	return overlay.Viewport{Transform: overlay.Transform{Scale: 1}, Width: size.Width, Height: size.Height}
}

// reload replaces a page with what another editor saved.
func (c *Client) reload(pageNo int) {
	records, err := c.Hub.backend.LoadPage(c.ctx, c.GradeID, pageNo)
	if err != nil {
		logger.Sugar.Errorf("Failed to reload grade %d page %d: %v", c.GradeID, pageNo, err)
		return
	}
	c.loop.Post(func() {
		if c.session == nil {
			return
		}
		if err := c.session.Load(pageNo, records); err != nil {
			logger.Sugar.Warnf("Failed to apply update of grade %d page %d: %v", c.GradeID, pageNo, err)
			return
		}
		c.emit(PageUpdateType, savePayload{Page: pageNo})
	})
}

// emit queues a message for the browser. It must run on the loop.
func (c *Client) emit(msgType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", msgType, err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: msgType, GradeID: c.GradeID, ClientID: c.ID, Payload: raw})
	select {
	case c.Send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		defer c.Hub.clients.Done()
		c.Hub.Unregister <- c

		var persister *overlay.Persister
		done := make(chan struct{})
		c.loop.Post(func() {
			if c.session != nil {
				c.session.Close()
				persister = c.session.Persister()
			}
			close(done)
		})
		select {
		case <-done:
			if persister != nil {
				persister.Wait()
			}
		case <-time.After(closeTimeout):
			logger.Sugar.Warnf("Editor of client %s did not close in time", c.ID)
		}
		c.cancel()
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		if mutating[msg.Type] && c.Role != model.RoleMarker {
			logger.Sugar.Warnf("Permission Denied: User %s (Role: %s) sent %s on grade %d", c.UserID, c.Role, msg.Type, c.GradeID)
			continue
		}

		c.loop.Post(func() { c.handle(msg) })
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// After a failed write the pump keeps draining Send so the editor never blocks.
	broken := false
	write := func(messageType int, data []byte) {
		if broken {
			return
		}
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(messageType, data); err != nil {
			logger.Sugar.Debugf("Write to client %s failed: %v", c.ID, err)
			broken = true
			c.Conn.Close()
		}
	}

	for {
		select {
		case message := <-c.Send:
			write(websocket.TextMessage, message)
		case <-ticker.C:
			write(websocket.PingMessage, nil)
		case <-c.ctx.Done():
			return
		}
	}
}

// handle applies one browser message to the session. It runs on the loop.
func (c *Client) handle(msg WSMessage) {
	s := c.session
	if s == nil {
		return
	}
	if err := c.apply(s, msg); err != nil {
		logger.Sugar.Debugf("Client %s: %s rejected: %v", c.ID, msg.Type, err)
		c.emit(ErrorType, errorPayload{Type: msg.Type, Error: err.Error()})
	}
}

func (c *Client) apply(s *overlay.Session, msg WSMessage) error {
	switch msg.Type {
	case ToolType:
		var p toolPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		t, err := overlay.ParseTool(p.Tool)
		if err != nil {
			return err
		}
		s.SelectTool(t)

	case ColourType:
		var p colourPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		colour, err := overlay.ParseColour(p.Colour)
		if err != nil {
			return err
		}
		switch p.Target {
		case "comment":
			s.SetCommentColour(colour)
		case "annotation":
			s.SetAnnotationColour(colour)
		default:
			return fmt.Errorf("unknown colour target %q", p.Target)
		}

	case StampType:
		var p stampPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		s.SetStamp(p.Stamp)

	case PageType:
		var p pagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		if p.Page < 0 || p.Page >= len(c.pages) {
			return fmt.Errorf("page %d out of range", p.Page)
		}
		vp := c.pageViewport(p.Page)
		if p.Viewport != nil {
			vp = *p.Viewport
		}
		if err := s.SetPage(p.Page, vp); err != nil {
			return err
		}
		c.Hub.setPage(c, p.Page)

	case ViewportType:
		var p viewportPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return s.SetViewport(p.Viewport)

	case GestureStartType, GestureMoveType:
		var p overlay.Point
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		if msg.Type == GestureStartType {
			s.GestureStart(p)
		} else {
			s.GestureMove(p)
		}

	case GestureEndType:
		s.GestureEnd()

	case CancelType:
		s.LoseFocus()

	case HoverLeaveType:
		if c.hovered != nil {
			s.HoverLeave(c.hovered)
			c.hovered = nil
		}

	case FocusType, HoverEnterType, DeleteType:
		var p overlay.Point
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		a := s.AnnotationAt(p)
		if a == nil {
			return nil
		}
		if msg.Type == DeleteType {
			s.Remove(a)
			return nil
		}
		n, ok := a.(overlay.TextAnnotation)
		if !ok {
			return nil
		}
		switch msg.Type {
		case FocusType:
			s.FocusNote(n)
		case HoverEnterType:
			s.HoverEnter(n)
			c.hovered = n
		}

	case BlurType:
		s.BlurNote()

	case TextType:
		var p textPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return s.SetNoteText(p.Text)

	case ToggleCollapseType:
		s.ToggleCollapse()

	case SearchType:
		var p searchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		found := s.SearchComments(p.Query)
		records := make([]overlay.Record, len(found))
		for i, n := range found {
			records[i] = n.Record()
		}
		c.emit(SearchResultType, searchResultPayload{Query: p.Query, Comments: records})

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}
