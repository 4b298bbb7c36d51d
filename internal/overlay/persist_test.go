package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersisterLastWriteWins(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	var seen []int

	saver := PageSaverFunc(func(ctx context.Context, gradeID int64, pageNo int, records []Record) error {
		mu.Lock()
		seen = append(seen, len(records))
		first := len(seen) == 1
		mu.Unlock()
		if first {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	sched := &manualScheduler{}
	p := NewPersister(saver, sched, time.Minute)
	var saved []int
	var failed []error
	p.OnSaved = func(pageNo int) { saved = append(saved, pageNo) }
	p.OnError = func(pageNo int, err error) { failed = append(failed, err) }

	p.Save(1, 0, []Record{{Type: KindLine}})
	<-started
	p.Save(1, 0, []Record{{Type: KindLine}, {Type: KindOval}})
	p.Wait()
	sched.Flush()

	mu.Lock()
	assert.Equal(t, []int{1, 2}, seen)
	mu.Unlock()
	assert.Equal(t, []int{0}, saved)
	assert.Empty(t, failed, "superseded save must not report")
	assert.False(t, p.Pending(0))
}

func TestPersisterTimeoutStartsAfterPreviousSave(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	var errs []error

	saver := PageSaverFunc(func(ctx context.Context, gradeID int64, pageNo int, records []Record) error {
		mu.Lock()
		first := errs == nil
		if first {
			errs = []error{}
		}
		mu.Unlock()
		if first {
			// Outlives the timeout and ignores cancellation.
			close(started)
			time.Sleep(150 * time.Millisecond)
			return nil
		}
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return ctx.Err()
	})

	sched := &manualScheduler{}
	p := NewPersister(saver, sched, 50*time.Millisecond)
	var saved []int
	var failed []error
	p.OnSaved = func(pageNo int) { saved = append(saved, pageNo) }
	p.OnError = func(pageNo int, err error) { failed = append(failed, err) }

	p.Save(1, 0, nil)
	<-started
	p.Save(1, 0, []Record{{Type: KindLine}})
	p.Save(1, 0, []Record{{Type: KindOval}})
	p.Wait()
	sched.Flush()

	mu.Lock()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], context.Canceled, "waiting save is superseded")
	assert.NoError(t, errs[1])
	mu.Unlock()
	assert.Equal(t, []int{0}, saved)
	assert.Empty(t, failed)
}

func TestPersisterReportsFailureWithoutRetry(t *testing.T) {
	saver := &recordingSaver{err: errors.New("db down")}
	sched := &manualScheduler{}
	p := NewPersister(saver, sched, 0)
	var failed []error
	p.OnError = func(pageNo int, err error) { failed = append(failed, err) }

	p.Save(1, 2, nil)
	p.Wait()
	sched.Flush()

	require.Len(t, failed, 1)
	assert.EqualError(t, failed[0], "db down")
	assert.Len(t, saver.Calls(), 1)
}

func TestPersisterCopiesRecords(t *testing.T) {
	saver := &recordingSaver{}
	p := NewPersister(saver, &manualScheduler{}, 0)
	recs := []Record{{Type: KindLine, X: 1}}
	p.Save(1, 0, recs)
	recs[0].X = 99
	p.Wait()
	require.Len(t, saver.Calls(), 1)
	assert.Equal(t, 1.0, saver.Calls()[0].records[0].X)
}

func TestPersisterCloseStopsReporting(t *testing.T) {
	saver := &recordingSaver{}
	sched := &manualScheduler{}
	p := NewPersister(saver, sched, 0)
	called := false
	p.OnSaved = func(int) { called = true }

	p.Close()
	p.Save(1, 0, nil)
	p.Wait()
	sched.Flush()

	assert.Len(t, saver.Calls(), 1)
	assert.False(t, called)
}
