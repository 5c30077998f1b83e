package timers

import (
	"sync"
	"time"

	"github.com/orquestrai/sells-broker/pkg/logging"
)

// Scheduler owns all deferred one-shot callbacks in the process. Arming a
// timer for a (key, kind) pair that already has one pending cancels the old
// timer first; the cancel and the re-arm happen under a single lock, so two
// concurrent Arm calls for the same pair can never leave both timers live.
type Scheduler struct {
	mu     sync.Mutex
	armed  map[timerKey]*time.Timer
	logger *logging.Logger
}

type timerKey struct {
	key  string
	kind string
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		armed:  make(map[timerKey]*time.Timer),
		logger: logger,
	}
}

// Arm schedules fn to run after delay, replacing any pending timer for the
// same (key, kind). A non-positive delay runs fn on its own goroutine as if
// the timer fired immediately.
func (s *Scheduler) Arm(key, kind string, delay time.Duration, fn func()) {
	tk := timerKey{key: key, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.armed[tk]; ok {
		old.Stop()
		s.logger.Debug("timer replaced", "key", key, "kind", kind)
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// Only clear the entry if it is still ours; a replacement may have
		// been armed between firing and acquiring the lock.
		if cur, ok := s.armed[tk]; ok && cur == t {
			delete(s.armed, tk)
		}
		s.mu.Unlock()
		fn()
	})
	s.armed[tk] = t
}

// Cancel stops the pending timer for (key, kind), if any. A callback that is
// already executing cannot be stopped; cancellation is best-effort.
func (s *Scheduler) Cancel(key, kind string) bool {
	tk := timerKey{key: key, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.armed[tk]
	if !ok {
		return false
	}
	delete(s.armed, tk)
	return t.Stop()
}

// CancelAll stops every pending timer sharing the given key, across kinds.
func (s *Scheduler) CancelAll(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tk, t := range s.armed {
		if tk.key == key {
			t.Stop()
			delete(s.armed, tk)
			n++
		}
	}
	return n
}

// Pending reports whether a timer is armed for (key, kind).
func (s *Scheduler) Pending(key, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[timerKey{key: key, kind: kind}]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// Shutdown cancels every armed timer.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tk, t := range s.armed {
		t.Stop()
		delete(s.armed, tk)
	}
}
