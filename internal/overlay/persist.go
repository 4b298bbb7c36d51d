package overlay

import (
	"context"
	"sync"
	"time"

	"editpdf/pkg/logger"
)

// PageSaver stores the complete annotation list of one page.
type PageSaver interface {
	SavePage(ctx context.Context, gradeID int64, pageNo int, records []Record) error
}

type PageSaverFunc func(ctx context.Context, gradeID int64, pageNo int, records []Record) error

func (f PageSaverFunc) SavePage(ctx context.Context, gradeID int64, pageNo int, records []Record) error {
	return f(ctx, gradeID, pageNo, records)
}

// Persister keeps at most one save per page in flight. A newer save cancels
// the one in flight and starts once it has returned, so the last write wins.
// Results of superseded saves are dropped. Failures are not retried.
type Persister struct {
	saver   PageSaver
	sched   Scheduler
	timeout time.Duration

	// OnSaved and OnError run on the scheduler.
	OnSaved func(pageNo int)
	OnError func(pageNo int, err error)

	mu       sync.Mutex
	gen      uint64
	inflight map[int]*pendingSave
	closed   bool
	wg       sync.WaitGroup
}

type pendingSave struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPersister(saver PageSaver, sched Scheduler, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Persister{saver: saver, sched: sched, timeout: timeout, inflight: make(map[int]*pendingSave)}
}

func (p *Persister) Save(gradeID int64, pageNo int, records []Record) {
	records = append([]Record(nil), records...)

	p.mu.Lock()
	prev := p.inflight[pageNo]
	if prev != nil {
		prev.cancel()
	}
	p.gen++
	// The timeout starts once the previous save has returned; cancel lets a
	// newer save supersede this one while it is still waiting.
	ctx, cancel := context.WithCancel(context.Background())
	cur := &pendingSave{gen: p.gen, cancel: cancel, done: make(chan struct{})}
	p.inflight[pageNo] = cur
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(cur.done)
		defer cancel()
		if prev != nil {
			<-prev.done
		}
		ctx, stop := context.WithTimeout(ctx, p.timeout)
		defer stop()
		err := p.saver.SavePage(ctx, gradeID, pageNo, records)

		p.mu.Lock()
		latest := p.inflight[pageNo] == cur
		if latest {
			delete(p.inflight, pageNo)
		}
		closed := p.closed
		p.mu.Unlock()

		if !latest {
			logger.Sugar.Debugf("Save of grade %d page %d superseded", gradeID, pageNo)
			return
		}
		if err != nil {
			logger.Sugar.Warnf("Failed to save grade %d page %d: %v", gradeID, pageNo, err)
		}
		if closed {
			return
		}
		p.sched.Post(func() {
			if err != nil {
				if p.OnError != nil {
					p.OnError(pageNo, err)
				}
				return
			}
			if p.OnSaved != nil {
				p.OnSaved(pageNo)
			}
		})
	}()
}

// Pending reports whether a save for the page is still running.
func (p *Persister) Pending(pageNo int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[pageNo] != nil
}

// Wait blocks until every started save has returned.
func (p *Persister) Wait() {
	p.wg.Wait()
}

// Close stops reporting results. Saves already started still complete so
// that tearing the editor down never loses the last edit.
func (p *Persister) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
