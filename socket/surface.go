package socket

import "editpdf/internal/overlay"

// wsSurface forwards the nodes of a session to the browser, which owns
// the actual canvas.
type wsSurface struct {
	client *Client
	next   overlay.NodeID
}

func (s *wsSurface) Place(n overlay.Node) overlay.NodeID {
	s.next++
	s.client.emit(DrawType, drawPayload{ID: s.next, Node: n})
	return s.next
}

func (s *wsSurface) Remove(id overlay.NodeID) {
	s.client.emit(EraseType, erasePayload{ID: id})
}
