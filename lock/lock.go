// Package lock implements the three-mode reader/writer/upgrade lock the
// Engine uses as its only concurrency primitive.
package lock

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Enter* when the requested mode could not be
// acquired within the given timeout.
var ErrTimeout = errors.New("lock: timed out")

// Mode identifies which of the three modes a Token currently holds.
type Mode int

const (
	// ModeRead permits any number of concurrent holders, excluded only by a write holder.
	ModeRead Mode = iota
	// ModeUpgrade permits at most one holder at a time, compatible with concurrent readers.
	ModeUpgrade
	// ModeWrite excludes every other holder, including readers.
	ModeWrite
)

// Token is the handle returned by Enter* and consumed by Exit or Upgrade. A
// Token must never be used from more than one goroutine concurrently and
// must be released exactly once.
type Token struct {
	mode Mode
}

// Mode reports which mode the token currently holds.
func (t *Token) Mode() Mode { return t.mode }

// Strategy is a single-writer/multi-reader lock with an additional upgrade
// mode that can be promoted to exclusive write without releasing in between,
// so a holder can validate against a consistent model and then atomically
// take exclusive access for mutation.
type Strategy struct {
	mut          sync.Mutex
	cond         *sync.Cond
	readers      int
	upgrading    bool
	writing      bool
	writeWaiting bool // an upgrader is draining readers to reach ModeWrite
}

// New returns a ready-to-use Strategy.
func New() *Strategy {
	s := &Strategy{}
	s.cond = sync.NewCond(&s.mut)
	return s
}

// EnterRead blocks until no writer holds the lock and no upgrader is
// draining readers to reach ModeWrite, then registers the caller as one of
// potentially many concurrent readers. Honoring writeWaiting here keeps a
// steady stream of new readers from starving an upgrader out of ever
// reaching ModeWrite.
func (s *Strategy) EnterRead(timeout time.Duration) (*Token, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if err := s.waitUntil(func() bool { return !s.writing && !s.writeWaiting }, timeout); err != nil {
		return nil, err
	}
	s.readers++
	return &Token{mode: ModeRead}, nil
}

// EnterUpgrade blocks until no other upgrader and no writer holds the lock;
// existing readers do not block an upgrade acquisition. The returned token
// must later be promoted via Upgrade or released via Exit.
func (s *Strategy) EnterUpgrade(timeout time.Duration) (*Token, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if err := s.waitUntil(func() bool { return !s.upgrading && !s.writing }, timeout); err != nil {
		return nil, err
	}
	s.upgrading = true
	return &Token{mode: ModeUpgrade}, nil
}

// Upgrade promotes tok, which must currently hold ModeUpgrade, to exclusive
// ModeWrite. It blocks until every current reader has exited, without ever
// releasing the upgrade slot, so no other writer or upgrader can interleave.
func (s *Strategy) Upgrade(tok *Token, timeout time.Duration) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if tok.mode != ModeUpgrade {
		panic("lock: Upgrade called on a token that is not holding ModeUpgrade")
	}

	s.writeWaiting = true
	err := s.waitUntil(func() bool { return s.readers == 0 }, timeout)
	s.writeWaiting = false
	s.cond.Broadcast() // wake any reader parked behind writeWaiting, win or lose.
	if err != nil {
		return err
	}
	s.writing = true
	tok.mode = ModeWrite
	return nil
}

// Exit releases whichever mode tok currently holds. It is the caller's
// responsibility to call Exit exactly once per successful Enter* (and after
// any Upgrade), on every code path including error returns.
func (s *Strategy) Exit(tok *Token) {
	s.mut.Lock()
	defer s.mut.Unlock()

	switch tok.mode {
	case ModeRead:
		s.readers--
	case ModeUpgrade:
		s.upgrading = false
	case ModeWrite:
		s.writing = false
		s.upgrading = false
	}
	s.cond.Broadcast()
}

// waitUntil blocks, with s.mut held, until predicate holds or timeout
// elapses. It relies on a background timer broadcasting the condition
// variable at the deadline so a goroutine parked in cond.Wait always wakes
// up to re-check, even when nothing else changes state before the deadline.
func (s *Strategy) waitUntil(predicate func() bool, timeout time.Duration) error {
	if predicate() {
		return nil
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mut.Lock()
		s.cond.Broadcast()
		s.mut.Unlock()
	})
	defer timer.Stop()

	for !predicate() {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		s.cond.Wait()
	}
	return nil
}
