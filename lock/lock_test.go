package lock

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestConcurrentReaders(t *testing.T) {
	s := New()

	tok1, err := s.EnterRead(time.Second)
	assert.NilError(t, err)
	tok2, err := s.EnterRead(time.Second)
	assert.NilError(t, err)

	s.Exit(tok1)
	s.Exit(tok2)
}

func TestWriteExcludesReaders(t *testing.T) {
	s := New()

	upg, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)
	assert.NilError(t, s.Upgrade(upg, time.Second))

	_, err = s.EnterRead(50 * time.Millisecond)
	assert.Error(t, err, ErrTimeout.Error())

	s.Exit(upg)

	tok, err := s.EnterRead(time.Second)
	assert.NilError(t, err)
	s.Exit(tok)
}

func TestUpgradeCompatibleWithReaders(t *testing.T) {
	s := New()

	rtok, err := s.EnterRead(time.Second)
	assert.NilError(t, err)

	utok, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)

	// Promoting to write must wait for the reader to drain.
	done := make(chan error, 1)
	go func() {
		done <- s.Upgrade(utok, time.Second)
	}()

	select {
	case <-done:
		t.Fatal("Upgrade returned before the reader exited")
	case <-time.After(50 * time.Millisecond):
	}

	s.Exit(rtok)
	assert.NilError(t, <-done)
	s.Exit(utok)
}

func TestSecondUpgraderBlocksUntilFirstExits(t *testing.T) {
	s := New()

	u1, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)

	_, err = s.EnterUpgrade(50 * time.Millisecond)
	assert.Error(t, err, ErrTimeout.Error())

	s.Exit(u1)

	u2, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)
	s.Exit(u2)
}

func TestDrainingUpgraderBlocksNewReaders(t *testing.T) {
	s := New()

	rtok, err := s.EnterRead(time.Second)
	assert.NilError(t, err)

	utok, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Upgrade(utok, time.Second)
	}()

	// Give Upgrade time to start draining before a new reader shows up.
	time.Sleep(20 * time.Millisecond)

	// A reader arriving after the upgrader started draining must not cut in
	// line ahead of it; it should block rather than being admitted.
	_, err = s.EnterRead(50 * time.Millisecond)
	assert.Error(t, err, ErrTimeout.Error())

	s.Exit(rtok)
	assert.NilError(t, <-done)
	s.Exit(utok)

	tok, err := s.EnterRead(time.Second)
	assert.NilError(t, err)
	s.Exit(tok)
}

func TestTimeoutThenSuccessAfterRelease(t *testing.T) {
	s := New()

	w, err := s.EnterUpgrade(time.Second)
	assert.NilError(t, err)
	assert.NilError(t, s.Upgrade(w, time.Second))

	_, err = s.EnterRead(30 * time.Millisecond)
	assert.Error(t, err, ErrTimeout.Error())

	s.Exit(w)

	tok, err := s.EnterRead(time.Second)
	assert.NilError(t, err)
	s.Exit(tok)
}
