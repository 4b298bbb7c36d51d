package socket

import (
	"encoding/json"
	"time"

	"editpdf/internal/feedback/model"
	"editpdf/internal/overlay"
)

const (
	// Sent by the browser.
	ToolType           = "TOOL"            // Select the active tool
	ColourType         = "COLOUR"          // Comment or annotation colour
	StampType          = "STAMP"           // Stamp image for the stamp tool
	PageType           = "PAGE"            // Show another page
	ViewportType       = "VIEWPORT"        // Zoom or rotation changed
	GestureStartType   = "GESTURE_START"   // Pointer pressed
	GestureMoveType    = "GESTURE_MOVE"    // Pointer moved while pressed
	GestureEndType     = "GESTURE_END"     // Pointer released
	CancelType         = "CANCEL"          // Escape or pointer lost
	FocusType          = "FOCUS"           // Comment under the point gained focus
	BlurType           = "BLUR"            // Focused comment lost focus
	TextType           = "TEXT"            // Content of the focused comment
	HoverEnterType     = "HOVER_ENTER"     // Pointer entered a comment
	HoverLeaveType     = "HOVER_LEAVE"     // Pointer left a comment
	DeleteType         = "DELETE"          // Remove the annotation under the point
	ToggleCollapseType = "TOGGLE_COLLAPSE" // Collapse or expand all comments
	SearchType         = "SEARCH"          // Find comments by text

	// Sent by the server.
	DocumentType       = "DOCUMENT"        // Page sizes and role, first message
	DrawType           = "DRAW"            // Place a node
	EraseType          = "ERASE"           // Remove a node
	SavedType          = "SAVED"           // A page reached the database
	SaveFailedType     = "SAVE_FAILED"     // A page could not be saved
	PageUpdateType     = "PAGE_UPDATE"     // Another editor saved a page
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined, left or changed page
	SearchResultType   = "SEARCH_RESULT"   // Comments matching a SEARCH
	ErrorType          = "ERROR"           // A message could not be applied
)

// mutating lists the messages only markers may send.
var mutating = map[string]bool{
	GestureStartType: true,
	GestureMoveType:  true,
	GestureEndType:   true,
	DeleteType:       true,
	TextType:         true,
}

type WSMessage struct {
	Type     string          `json:"type"`
	GradeID  int64           `json:"grade_id"`
	UserID   string          `json:"user_id,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type Presence struct {
	ClientID string    `json:"client_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	Page     int       `json:"page"`
	JoinedAt time.Time `json:"joined_at"`
}

type toolPayload struct {
	Tool string `json:"tool"`
}

type colourPayload struct {
	// Target is "comment" or "annotation".
	Target string `json:"target"`
	Colour string `json:"colour"`
}

type stampPayload struct {
	Stamp string `json:"stamp"`
}

type pagePayload struct {
	Page     int               `json:"page"`
	Viewport *overlay.Viewport `json:"viewport,omitempty"`
}

type viewportPayload struct {
	Viewport overlay.Viewport `json:"viewport"`
}

type textPayload struct {
	Text string `json:"text"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type documentPayload struct {
	ClientID  string           `json:"client_id"`
	Role      string           `json:"role"`
	PageCount int              `json:"page_count"`
	Pages     []model.PageSize `json:"pages"`
}

type drawPayload struct {
	ID   overlay.NodeID `json:"id"`
	Node overlay.Node   `json:"node"`
}

type erasePayload struct {
	ID overlay.NodeID `json:"id"`
}

type savePayload struct {
	Page  int    `json:"page"`
	Error string `json:"error,omitempty"`
}

type searchResultPayload struct {
	Query    string           `json:"query"`
	Comments []overlay.Record `json:"comments"`
}

type errorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
