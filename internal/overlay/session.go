package overlay

import (
	"context"
	"errors"
	"strings"
	"time"

	"editpdf/pkg/logger"
)

var (
	ErrClosed   = errors.New("overlay: session closed")
	ErrReadOnly = errors.New("overlay: session is read-only")
	ErrNoFocus  = errors.New("overlay: no comment has focus")
)

// Delays are the debounce intervals of text annotations.
type Delays struct {
	// Delete is how long an emptied comment survives after losing focus.
	Delete time.Duration
	// Collapse is how long a comment stays open after losing focus.
	Collapse time.Duration
	// HoverCollapse is how long a comment stays open after the pointer leaves it.
	HoverCollapse time.Duration
}

var DefaultDelays = Delays{
	Delete:        400 * time.Millisecond,
	Collapse:      800 * time.Millisecond,
	HoverCollapse: 400 * time.Millisecond,
}

type Options struct {
	GradeID   int64
	PageCount int
	// Viewport of page 0, the page the session opens on.
	Viewport  Viewport
	Surface   Surface
	Scheduler Scheduler
	Saver     PageSaver
	// Measurer sizes comment content. DefaultMeasurer when nil.
	Measurer Measurer
	ReadOnly bool
	// CollapseComments collapses comments the pointer leaves and starts loaded comments collapsed.
	CollapseComments bool
	Delays           Delays
	SaveTimeout      time.Duration

	// OnSaveError surfaces a failed save. Local state is kept so the user can save again.
	OnSaveError func(pageNo int, err error)
	OnSaved     func(pageNo int)
}

// Session is the editor state of one grader on one document. It is not safe
// for concurrent use: every method, and every callback it schedules, must run
// on the goroutine of its Scheduler.
type Session struct {
	gradeID   int64
	registry  *Registry
	surface   Surface
	sched     Scheduler
	persister *Persister
	measurer  Measurer
	delays    Delays
	readOnly  bool
	collapse  bool

	page             int
	viewport         Viewport
	tool             Tool
	commentColour    Colour
	annotationColour Colour
	stamp            string

	edit    *Edit
	preview *Drawable
	drag    *dragState
	focused TextAnnotation
	closed  bool
}

type dragState struct {
	target Annotation
	// offset is the pointer position relative to the annotation position.
	offset Point
	origin Point
	moved  bool
}

func NewSession(opts Options) (*Session, error) {
	if opts.PageCount <= 0 {
		return nil, errors.New("overlay: document has no pages")
	}
	if opts.Surface == nil || opts.Scheduler == nil {
		return nil, errors.New("overlay: surface and scheduler are required")
	}
	if err := opts.Viewport.Validate(); err != nil {
		return nil, err
	}
	saver := opts.Saver
	if saver == nil {
		saver = PageSaverFunc(func(ctx context.Context, gradeID int64, pageNo int, records []Record) error { return nil })
	}
	measurer := opts.Measurer
	if measurer == nil {
		measurer = DefaultMeasurer
	}
	delays := opts.Delays
	if delays == (Delays{}) {
		delays = DefaultDelays
	}

	s := &Session{
		gradeID:          opts.GradeID,
		registry:         NewRegistry(opts.PageCount),
		surface:          opts.Surface,
		sched:            opts.Scheduler,
		measurer:         measurer,
		delays:           delays,
		readOnly:         opts.ReadOnly,
		collapse:         opts.CollapseComments,
		viewport:         opts.Viewport,
		tool:             ToolDrag,
		commentColour:    Yellow,
		annotationColour: Red,
	}
	s.persister = NewPersister(saver, opts.Scheduler, opts.SaveTimeout)
	s.persister.OnError = opts.OnSaveError
	s.persister.OnSaved = opts.OnSaved
	return s, nil
}

func (s *Session) GradeID() int64          { return s.gradeID }
func (s *Session) Registry() *Registry     { return s.registry }
func (s *Session) CurrentPage() int        { return s.page }
func (s *Session) Viewport() Viewport      { return s.viewport }
func (s *Session) Tool() Tool              { return s.tool }
func (s *Session) ReadOnly() bool          { return s.readOnly }
func (s *Session) Preview() *Drawable      { return s.preview }
func (s *Session) Focused() TextAnnotation { return s.focused }
func (s *Session) Persister() *Persister   { return s.persister }

// Edit returns a copy of the gesture in progress.
func (s *Session) Edit() (Edit, bool) {
	if s.edit == nil {
		return Edit{}, false
	}
	e := *s.edit
	e.Path = append([]Point(nil), s.edit.Path...)
	return e, true
}

// Dragging reports whether a gesture is in progress.
func (s *Session) Dragging() bool {
	return s.edit != nil || s.drag != nil
}

func (s *Session) Annotations() []Annotation {
	list, _ := s.registry.List(s.page)
	return list
}

func (s *Session) scene() Scene {
	return Scene{Surface: s.surface, Viewport: s.viewport, ReadOnly: s.readOnly}
}

// SelectTool makes t the only active tool. A gesture in progress is discarded.
func (s *Session) SelectTool(t Tool) {
	if s.Dragging() {
		s.Cancel()
	}
	s.tool = t
}

func (s *Session) SetCommentColour(c Colour)    { s.commentColour = c }
func (s *Session) SetAnnotationColour(c Colour) { s.annotationColour = c }
func (s *Session) SetStamp(name string)         { s.stamp = name }

// SetPage shows another page. The drawables of the previous page are erased.
func (s *Session) SetPage(pageNo int, vp Viewport) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.registry.check(pageNo); err != nil {
		return err
	}
	if err := vp.Validate(); err != nil {
		return err
	}
	s.Cancel()
	s.BlurNote()
	s.erasePage(s.page)
	s.page, s.viewport = pageNo, vp
	s.drawPage()
	return nil
}

// SetViewport redraws the current page after a zoom or rotation.
func (s *Session) SetViewport(vp Viewport) error {
	if s.closed {
		return ErrClosed
	}
	if err := vp.Validate(); err != nil {
		return err
	}
	s.viewport = vp
	s.drawPage()
	if s.edit != nil {
		s.drawPreview()
	}
	return nil
}

// Load replaces the annotations of a page with records from the host.
func (s *Session) Load(pageNo int, records []Record) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.registry.check(pageNo); err != nil {
		return err
	}
	list := make([]Annotation, 0, len(records))
	for _, r := range records {
		r.PageNo = pageNo
		a, err := FromRecord(r)
		if err != nil {
			return err
		}
		if n, ok := a.(TextAnnotation); ok {
			note := n.textNote()
			note.Height = s.measurer.Measure(n.Kind(), note.RawText, note.Width)
			note.collapsed = s.collapse
		}
		list = append(list, a)
	}

	old, _ := s.registry.List(pageNo)
	for _, a := range old {
		s.forget(a)
	}
	if err := s.registry.Replace(pageNo, list); err != nil {
		return err
	}
	if pageNo == s.page {
		s.drawPage()
	}
	return nil
}

// GestureStart begins a gesture at a window point. With a drawing tool it
// starts a new edit; with the select tool it grabs the annotation under the pointer.
func (s *Session) GestureStart(p Point) {
	if s.closed || s.readOnly {
		return
	}
	if s.Dragging() {
		s.Cancel()
	}
	pp := s.viewport.ToPage(p)
	if s.tool == ToolSelect {
		a := s.hit(pp)
		if a == nil {
			return
		}
		s.drag = &dragState{target: a, offset: pp.Sub(a.Position()), origin: a.Position()}
		return
	}
	if _, ok := s.tool.Kind(); !ok {
		return
	}
	s.edit = &Edit{
		Tool:             s.tool,
		Start:            pp,
		End:              pp,
		CommentColour:    s.commentColour,
		AnnotationColour: s.annotationColour,
		Stamp:            s.stamp,
	}
	if s.tool == ToolPen {
		s.edit.Path = []Point{pp}
	}
}

func (s *Session) GestureMove(p Point) {
	if s.closed {
		return
	}
	pp := s.viewport.ToPage(p)
	switch {
	case s.drag != nil:
		s.dragTo(pp)
	case s.edit != nil:
		s.edit.End = pp
		if s.edit.Tool == ToolPen {
			s.edit.Path = append(s.edit.Path, pp)
		}
		s.drawPreview()
	}
}

// GestureEnd finishes the gesture. It returns the annotation created from the
// edit, or nil when nothing was created.
func (s *Session) GestureEnd() Annotation {
	if s.closed {
		return nil
	}
	if d := s.drag; d != nil {
		s.drag = nil
		s.endNoteDrag(d.target)
		if d.moved {
			s.savePage(d.target.Page())
		}
		return nil
	}
	if s.edit == nil {
		return nil
	}
	e := s.edit
	s.edit = nil
	s.preview.Erase()
	s.preview = nil

	a, ok := promote(e, s.gradeID, s.page)
	if !ok {
		logger.Sugar.Debugf("Discarded %s gesture on grade %d page %d: too small", e.Tool, s.gradeID, s.page)
		return nil
	}
	if err := s.registry.Add(s.page, a); err != nil {
		logger.Sugar.Warnf("Failed to add annotation to grade %d page %d: %v", s.gradeID, s.page, err)
		return nil
	}
	a.Draw(s.scene())
	if n, ok := a.(TextAnnotation); ok {
		s.FocusNote(n)
	}
	s.savePage(s.page)
	return a
}

// Cancel discards the gesture in progress. A dragged annotation goes back to
// where it started; a preview is erased. There is no undo.
func (s *Session) Cancel() {
	if s.edit != nil {
		s.edit = nil
		s.preview.Erase()
		s.preview = nil
	}
	if d := s.drag; d != nil {
		s.drag = nil
		if d.moved {
			d.target.Move(s.scene(), d.origin.X, d.origin.Y)
		}
		s.endNoteDrag(d.target)
	}
}

// endNoteDrag reopens a dragged comment that still has the focus.
func (s *Session) endNoteDrag(a Annotation) {
	n, ok := a.(TextAnnotation)
	if !ok {
		return
	}
	n.textNote().dragging = false
	if n.Active() {
		s.expand(n)
	}
}

// LoseFocus is called when the editor window loses focus.
func (s *Session) LoseFocus() {
	s.Cancel()
}

func (s *Session) dragTo(pp Point) {
	d := s.drag
	a := d.target
	w, h := a.extent()
	area := s.viewport.Bounds().Inset(w, h)

	// Clamp the top-left corner of the bounds; the position of a line may be
	// any of its two ends.
	shift := a.Position().Sub(a.Bounds().Origin())
	corner := pp.Sub(d.offset).Sub(shift).Clip(area)
	next := corner.Add(shift.X, shift.Y)

	if n, ok := a.(TextAnnotation); ok && !d.moved {
		note := n.textNote()
		note.stopTimers()
		note.dragging = true
		note.collapsed = true
	}
	d.moved = true
	a.Move(s.scene(), next.X, next.Y)
}

func (s *Session) drawPreview() {
	s.preview.Erase()
	e := s.edit
	kind, _ := e.Tool.Kind()
	if kind.IsText() {
		d := newDrawable(s.surface)
		fill, opacity := e.CommentColour.CommentFill()
		d.add(Node{Kind: NodeRect, Bounds: s.viewport.RectToWindow(e.Bounds()), Fill: fill.Hex(), Opacity: opacity})
		s.preview = d
		return
	}
	s.preview = shapeFromEdit(e, kind, s.gradeID, s.page).Draw(s.scene())
}

// AnnotationAt returns the topmost annotation under a window point of the current page.
func (s *Session) AnnotationAt(p Point) Annotation {
	return s.hit(s.viewport.ToPage(p))
}

func (s *Session) hit(pp Point) Annotation {
	list, _ := s.registry.List(s.page)
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].hitRect().Contains(pp) {
			return list[i]
		}
	}
	return nil
}

// Remove deletes an annotation, erases it and saves its page.
func (s *Session) Remove(a Annotation) bool {
	if s.closed || s.readOnly {
		return false
	}
	if !s.registry.Remove(a.Page(), a) {
		return false
	}
	s.forget(a)
	s.savePage(a.Page())
	return true
}

// forget drops every reference the session holds to a.
func (s *Session) forget(a Annotation) {
	a.Erase()
	if n, ok := a.(TextAnnotation); ok {
		n.textNote().stopTimers()
		if s.focused == n {
			s.focused = nil
		}
	}
	if s.drag != nil && s.drag.target == a {
		s.drag = nil
	}
}

// FocusNote gives n the keyboard focus: it expands and any pending collapse
// or deletion is cancelled.
func (s *Session) FocusNote(n TextAnnotation) {
	if s.closed {
		return
	}
	if s.focused != nil && s.focused != n {
		s.BlurNote()
	}
	s.focused = n
	note := n.textNote()
	note.active = true
	note.deleteMe = false
	note.stopTimers()
	s.expand(n)
}

// BlurNote takes the focus away from the focused comment. It collapses after
// a delay, is deleted after a delay when empty, and its page is saved.
func (s *Session) BlurNote() {
	n := s.focused
	if n == nil {
		return
	}
	s.focused = nil
	note := n.textNote()
	note.active = false
	s.collapseLater(n, s.delays.Collapse)
	if s.readOnly {
		return
	}
	if note.empty() {
		s.deleteLater(n)
	}
	s.savePage(n.Page())
}

// SetNoteText replaces the content of the focused comment and resizes it.
func (s *Session) SetNoteText(text string) error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	n := s.focused
	if n == nil {
		return ErrNoFocus
	}
	note := n.textNote()
	note.RawText = text
	note.Height = s.measurer.Measure(n.Kind(), text, note.Width)
	s.redraw(n)
	return nil
}

func (s *Session) HoverEnter(n TextAnnotation) {
	if s.tool == ToolSelect || s.tool == ToolHTMLComment || s.readOnly {
		s.expand(n)
	}
}

func (s *Session) HoverLeave(n TextAnnotation) {
	if s.collapse && !n.Active() {
		s.collapseLater(n, s.delays.HoverCollapse)
	}
}

// ToggleCollapse flips between showing every comment of the current page
// and showing only their markers. It returns the new setting.
func (s *Session) ToggleCollapse() bool {
	s.collapse = !s.collapse
	for _, a := range s.Annotations() {
		n, ok := a.(TextAnnotation)
		if !ok || n.Active() {
			continue
		}
		note := n.textNote()
		if note.collapseTimer != nil {
			note.collapseTimer.Stop()
			note.collapseTimer = nil
		}
		note.collapsed = s.collapse
		s.redraw(n)
	}
	return s.collapse
}

// SearchComments returns the comments of every page whose text contains
// query, ignoring case and markup. An empty query matches all of them.
func (s *Session) SearchComments(query string) []TextAnnotation {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []TextAnnotation
	for page := 0; page < s.registry.PageCount(); page++ {
		list, _ := s.registry.List(page)
		for _, a := range list {
			n, ok := a.(TextAnnotation)
			if !ok {
				continue
			}
			if q == "" || strings.Contains(strings.ToLower(PlainText(n.Kind(), n.Text())), q) {
				out = append(out, n)
			}
		}
	}
	return out
}

func (s *Session) expand(n TextAnnotation) {
	note := n.textNote()
	if note.dragging {
		return
	}
	if note.collapseTimer != nil {
		note.collapseTimer.Stop()
		note.collapseTimer = nil
	}
	if note.collapsed {
		note.collapsed = false
		s.redraw(n)
	}
}

func (s *Session) collapseLater(n TextAnnotation, d time.Duration) {
	note := n.textNote()
	if note.collapseTimer != nil {
		note.collapseTimer.Stop()
	}
	note.collapseTimer = s.sched.AfterFunc(d, func() {
		note.collapseTimer = nil
		if note.active || note.collapsed {
			return
		}
		note.collapsed = true
		s.redraw(n)
	})
}

func (s *Session) deleteLater(n TextAnnotation) {
	note := n.textNote()
	note.deleteMe = true
	if note.deleteTimer != nil {
		note.deleteTimer.Stop()
	}
	note.deleteTimer = s.sched.AfterFunc(s.delays.Delete, func() {
		note.deleteTimer = nil
		if note.deleteMe && !note.active {
			s.Remove(n)
		}
	})
}

// redraw refreshes a visible annotation.
func (s *Session) redraw(a Annotation) {
	if s.closed || a.Page() != s.page {
		return
	}
	if s.registry.index(a.Page(), a) < 0 {
		return
	}
	a.Draw(s.scene())
}

func (s *Session) drawPage() {
	list, _ := s.registry.List(s.page)
	sc := s.scene()
	for _, a := range list {
		a.Draw(sc)
	}
}

func (s *Session) erasePage(pageNo int) {
	list, _ := s.registry.List(pageNo)
	for _, a := range list {
		a.Erase()
	}
}

func (s *Session) savePage(pageNo int) {
	records, err := s.registry.Records(pageNo)
	if err != nil {
		return
	}
	s.persister.Save(s.gradeID, pageNo, records)
}

// dropPendingDeletes removes the empty comments still waiting for their
// delete timer and saves the pages they were on.
func (s *Session) dropPendingDeletes() {
	if s.readOnly {
		return
	}
	for page := 0; page < s.registry.PageCount(); page++ {
		list, _ := s.registry.List(page)
		dropped := false
		for _, a := range list {
			n, ok := a.(TextAnnotation)
			if !ok || !n.textNote().deleteMe || n.Active() {
				continue
			}
			if s.registry.Remove(page, a) {
				s.forget(a)
				dropped = true
			}
		}
		if dropped {
			s.savePage(page)
		}
	}
}

// Close tears the editor down: the focused comment is blurred and saved,
// empty comments are dropped, all drawables are erased and pending timers
// are stopped.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.Cancel()
	s.BlurNote()
	s.dropPendingDeletes()
	for page := 0; page < s.registry.PageCount(); page++ {
		list, _ := s.registry.List(page)
		for _, a := range list {
			a.Erase()
			if n, ok := a.(TextAnnotation); ok {
				n.textNote().stopTimers()
			}
		}
	}
	s.persister.Close()
	s.closed = true
}
