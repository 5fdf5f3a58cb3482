package documents

import (
	"sync"
	"time"
)

const subscriberBuffer = 16

type subscriber struct {
	filename string
	ch       chan Event
}

// Tracker keeps the processing status of every file and fans transitions out
// to subscribers.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
	subs     map[int]subscriber
	nextID   int
	nextJob  uint64
	now      func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		statuses: map[string]Status{},
		subs:     map[int]subscriber{},
		now:      time.Now,
	}
}

// Begin marks filename pending. It fails with ErrAlreadyRunning while a
// previous job for the same file is unfinished.
func (t *Tracker) Begin(filename, engine string) (Status, error) {
	t.mu.Lock()
	if current, ok := t.statuses[filename]; ok && !current.Finished() {
		t.mu.Unlock()
		return current, ErrAlreadyRunning
	}
	now := t.now()
	t.nextJob++
	status := Status{
		Filename:  filename,
		Engine:    engine,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		job:       t.nextJob,
	}
	t.statuses[filename] = status
	t.mu.Unlock()

	t.publish(status)
	return status, nil
}

func (t *Tracker) Processing(filename string) {
	t.update(filename, func(s *Status) { s.Status = StatusProcessing })
}

func (t *Tracker) Done(filename string, pages int) {
	t.update(filename, func(s *Status) {
		s.Status = StatusDone
		s.Pages = pages
		s.Error = ""
	})
}

func (t *Tracker) Fail(filename string, err error) {
	t.update(filename, func(s *Status) {
		s.Status = StatusFailed
		if err != nil {
			s.Error = err.Error()
		}
	})
}

func (t *Tracker) update(filename string, fn func(*Status)) {
	t.mu.Lock()
	status, ok := t.statuses[filename]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(&status)
	status.UpdatedAt = t.now()
	t.statuses[filename] = status
	t.mu.Unlock()

	t.publish(status)
}

// Get returns the status of filename.
func (t *Tracker) Get(filename string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[filename]
	return s, ok
}

// Forget drops the status of filename. An unfinished job keeps its status and
// Forget returns ErrAlreadyRunning.
func (t *Tracker) Forget(filename string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.statuses[filename]; ok && !current.Finished() {
		return ErrAlreadyRunning
	}
	delete(t.statuses, filename)
	return nil
}

// owns reports whether job is still the tracked job of filename.
func (t *Tracker) owns(filename string, job uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	current, ok := t.statuses[filename]
	return ok && current.job == job
}

// Subscribe returns a channel of events for filename, or for every file when
// filename is empty. The returned func unsubscribes and closes the channel.
// Slow subscribers miss events rather than block workers.
func (t *Tracker) Subscribe(filename string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = subscriber{filename: filename, ch: ch}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) publish(status Status) {
	event := eventOf(status)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subs {
		if sub.filename != "" && sub.filename != status.Filename {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Prune drops finished entries last updated before now minus olderThan and
// returns how many were removed.
func (t *Tracker) Prune(olderThan time.Duration) int {
	cutoff := t.now().Add(-olderThan)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for name, s := range t.statuses {
		if s.Finished() && s.UpdatedAt.Before(cutoff) {
			delete(t.statuses, name)
			removed++
		}
	}
	return removed
}
