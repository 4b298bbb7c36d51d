package overlay

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingSurface keeps the nodes currently placed.
type recordingSurface struct {
	next  NodeID
	nodes map[NodeID]Node
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{nodes: make(map[NodeID]Node)}
}

func (r *recordingSurface) Place(n Node) NodeID {
	r.next++
	r.nodes[r.next] = n
	return r.next
}

func (r *recordingSurface) Remove(id NodeID) {
	delete(r.nodes, id)
}

func (r *recordingSurface) count(kind NodeKind) int {
	c := 0
	for _, n := range r.nodes {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer

	mu     sync.Mutex
	posted []func()
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Post(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, f)
}

// Advance moves the clock forward, firing due timers in order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		var due []*manualTimer
		for _, t := range s.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
		t := due[0]
		s.now = t.at
		t.fired = true
		t.f()
	}
	s.now = target
}

// Flush runs the funcs posted by background work.
func (s *manualScheduler) Flush() {
	s.mu.Lock()
	posted := s.posted
	s.posted = nil
	s.mu.Unlock()
	for _, f := range posted {
		f()
	}
}

type saveCall struct {
	gradeID int64
	pageNo  int
	records []Record
}

type recordingSaver struct {
	mu    sync.Mutex
	calls []saveCall
	err   error
}

func (r *recordingSaver) SavePage(ctx context.Context, gradeID int64, pageNo int, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, saveCall{gradeID: gradeID, pageNo: pageNo, records: records})
	return r.err
}

func (r *recordingSaver) Calls() []saveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]saveCall(nil), r.calls...)
}

type fixture struct {
	session *Session
	surface *recordingSurface
	sched   *manualScheduler
	saver   *recordingSaver
}

var testViewport = Viewport{Transform: Transform{Scale: 1}, Width: 800, Height: 1000}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{surface: newRecordingSurface(), sched: &manualScheduler{}, saver: &recordingSaver{}}
	opts := Options{
		GradeID:   7,
		PageCount: 3,
		Viewport:  testViewport,
		Surface:   f.surface,
		Scheduler: f.sched,
		Saver:     f.saver,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	f.session = s
	return f
}

// settle waits for background saves and delivers their results.
func (f *fixture) settle() {
	f.session.Persister().Wait()
	f.sched.Flush()
}

func (f *fixture) drag(tool Tool, from, to Point) Annotation {
	f.session.SelectTool(tool)
	f.session.GestureStart(from)
	f.session.GestureMove(Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2})
	f.session.GestureMove(to)
	return f.session.GestureEnd()
}
