package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"editpdf/config"
	"editpdf/internal/feedback/model"
	"editpdf/internal/feedback/service"
	"editpdf/internal/overlay"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend keeps pages in memory and notifies the hub like the feedback service does.
type stubBackend struct {
	mu    sync.Mutex
	roles map[string]string
	pages map[int][]overlay.Record
	saves int
	hub   *Hub
}

func (b *stubBackend) Role(ctx context.Context, gradeID int64, userID string) (string, error) {
	if role, ok := b.roles[userID]; ok {
		return role, nil
	}
	return "", service.ErrForbidden
}

func (b *stubBackend) DocumentInfo(ctx context.Context, gradeID int64) (*model.DocumentInfo, error) {
	pages := []model.PageSize{{Width: 800, Height: 1000}, {Width: 800, Height: 1000}}
	return &model.DocumentInfo{GradeID: gradeID, PageCount: len(pages), Pages: pages}, nil
}

func (b *stubBackend) LoadPage(ctx context.Context, gradeID int64, pageNo int) ([]overlay.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]overlay.Record(nil), b.pages[pageNo]...), nil
}

func (b *stubBackend) SavePage(ctx context.Context, userID, origin string, gradeID int64, pageNo int, records []overlay.Record) error {
	b.mu.Lock()
	b.pages[pageNo] = records
	b.saves++
	b.mu.Unlock()
	b.hub.PageChanged(gradeID, pageNo, origin)
	return nil
}

func (b *stubBackend) page(pageNo int) []overlay.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[pageNo]
}

func newTestServer(t *testing.T) (*stubBackend, string) {
	backend, _, url := newTestHub(t)
	return backend, url
}

func newTestHub(t *testing.T) (*stubBackend, *Hub, string) {
	backend := &stubBackend{
		roles: map[string]string{"marker1": model.RoleMarker, "student1": model.RoleViewer},
		pages: make(map[int][]overlay.Record),
	}
	hub := NewHub(backend, config.EditorConfig{SaveTimeout: "5s"}, config.CORSConfig{Origins: []string{"http://app.example"}})
	backend.hub = hub
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(server.Close)
	return backend, hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?gradeId=7&user="
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = raw
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one of msgType arrives and returns all of them.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []WSMessage {
	var seen []WSMessage
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		seen = append(seen, msg)
		if msg.Type == msgType {
			return seen
		}
	}
}

func drawn(t *testing.T, msgs []WSMessage, kind overlay.NodeKind) int {
	n := 0
	for _, m := range msgs {
		if m.Type != DrawType {
			continue
		}
		var p drawPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		if p.Node.Kind == kind {
			n++
		}
	}
	return n
}

func TestHubIntegration(t *testing.T) {
	backend, url := newTestServer(t)

	marker := dial(t, url+"marker1")
	msgs := readUntil(t, marker, DocumentType)
	var doc documentPayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &doc))
	assert.Equal(t, model.RoleMarker, doc.Role)
	assert.Equal(t, 2, doc.PageCount)
	assert.NotEmpty(t, doc.ClientID)

	viewer := dial(t, url+"student1")
	readUntil(t, viewer, DocumentType)

	// A viewer cannot draw; the search reply proves the gesture was processed first.
	send(t, viewer, ToolType, toolPayload{Tool: "rectangle"})
	send(t, viewer, GestureStartType, overlay.Point{X: 10, Y: 10})
	send(t, viewer, GestureMoveType, overlay.Point{X: 60, Y: 50})
	send(t, viewer, GestureEndType, nil)
	send(t, viewer, SearchType, searchPayload{Query: "anything"})
	msgs = readUntil(t, viewer, SearchResultType)
	assert.Zero(t, drawn(t, msgs, overlay.NodeRect))

	send(t, marker, ToolType, toolPayload{Tool: "rectangle"})
	send(t, marker, GestureStartType, overlay.Point{X: 10, Y: 10})
	send(t, marker, GestureMoveType, overlay.Point{X: 60, Y: 50})
	send(t, marker, GestureEndType, nil)
	msgs = readUntil(t, marker, SavedType)
	assert.NotZero(t, drawn(t, msgs, overlay.NodeRect))

	saved := backend.page(0)
	require.Len(t, saved, 1)
	assert.Equal(t, overlay.KindRectangle, saved[0].Type)
	assert.Equal(t, 10.0, saved[0].X)
	assert.Equal(t, 60.0, *saved[0].EndX)

	// The viewer reloads the page and draws the new rectangle.
	msgs = readUntil(t, viewer, PageUpdateType)
	assert.NotZero(t, drawn(t, msgs, overlay.NodeRect))
	backend.mu.Lock()
	assert.Equal(t, 1, backend.saves)
	backend.mu.Unlock()
}

func TestPresence(t *testing.T) {
	_, url := newTestServer(t)

	marker := dial(t, url+"marker1")
	readUntil(t, marker, DocumentType)
	dial(t, url+"student1")

	for {
		msgs := readUntil(t, marker, PresenceUpdateType)
		var statuses []Presence
		require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &statuses))
		if len(statuses) < 2 {
			continue
		}
		users := []string{statuses[0].UserID, statuses[1].UserID}
		assert.ElementsMatch(t, []string{"marker1", "student1"}, users)
		break
	}

	send(t, marker, PageType, pagePayload{Page: 1})
	for {
		msgs := readUntil(t, marker, PresenceUpdateType)
		var statuses []Presence
		require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &statuses))
		found := false
		for _, s := range statuses {
			if s.UserID == "marker1" && s.Page == 1 {
				found = true
			}
		}
		if found {
			break
		}
	}
}

func TestRejectedMessages(t *testing.T) {
	_, url := newTestServer(t)
	marker := dial(t, url+"marker1")
	readUntil(t, marker, DocumentType)

	send(t, marker, ToolType, toolPayload{Tool: "spray"})
	msgs := readUntil(t, marker, ErrorType)
	var p errorPayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &p))
	assert.Equal(t, ToolType, p.Type)

	send(t, marker, PageType, pagePayload{Page: 5})
	readUntil(t, marker, ErrorType)

	send(t, marker, TextType, textPayload{Text: "no comment has focus"})
	readUntil(t, marker, ErrorType)
}

func TestServeWsChecksOrigin(t *testing.T) {
	_, url := newTestServer(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"marker1", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://app.example")
	conn, _, err := websocket.DefaultDialer.Dial(url+"marker1", header)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, DocumentType)
}

func TestServeWsRejectsStrangers(t *testing.T) {
	_, url := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"stranger", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(strings.Replace(url, "gradeId=7", "gradeId=x", 1)+"marker1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShutdownSavesOpenComment(t *testing.T) {
	backend, hub, url := newTestHub(t)
	marker := dial(t, url+"marker1")
	readUntil(t, marker, DocumentType)

	send(t, marker, ToolType, toolPayload{Tool: "comment"})
	send(t, marker, GestureStartType, overlay.Point{X: 100, Y: 100})
	send(t, marker, GestureMoveType, overlay.Point{X: 250, Y: 160})
	send(t, marker, GestureEndType, nil)
	send(t, marker, TextType, textPayload{Text: "Needs a citation"})
	send(t, marker, SearchType, searchPayload{Query: "CITATION"})
	msgs := readUntil(t, marker, SearchResultType)
	var found searchResultPayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, &found))
	require.Len(t, found.Comments, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	saved := backend.page(0)
	require.Len(t, saved, 1)
	assert.Equal(t, overlay.KindComment, saved[0].Type)
	assert.Equal(t, "Needs a citation", saved[0].RawText)
}
