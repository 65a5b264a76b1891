package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(t.TempDir(), time.Second)

	tok, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tok.SessionID() != "s1" {
		t.Errorf("SessionID = %s, want s1", tok.SessionID())
	}
	m.Release(tok)

	// Reacquirable after release.
	tok2, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	m.Release(tok2)
}

func TestAcquire_TimesOutWhileHeld(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 150*time.Millisecond)

	tok, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m.Release(tok)

	start := time.Now()
	_, err = m.Acquire(context.Background(), "s1")
	if !memerr.IsKind(err, memerr.KindLockTimeout) {
		t.Fatalf("second acquire error = %v, want LockTimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s, want bounded wait", elapsed)
	}
}

func TestAcquire_CanceledContextIsNotTimeout(t *testing.T) {
	m := NewManager(t.TempDir(), 5*time.Second)

	tok, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m.Release(tok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx, "s1")
	if err == nil {
		t.Fatal("expected an error from canceled acquisition")
	}
	if memerr.IsKind(err, memerr.KindLockTimeout) {
		t.Errorf("canceled acquire classified as LockTimeoutError: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
}

func TestAcquire_DifferentSessionsIndependent(t *testing.T) {
	m := NewManager(t.TempDir(), 200*time.Millisecond)

	tok1, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire s1: %v", err)
	}
	defer m.Release(tok1)

	// s2 must not be blocked by s1's lock.
	tok2, err := m.Acquire(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Acquire s2 while s1 held: %v", err)
	}
	m.Release(tok2)
}

func TestAcquire_SerializesGoroutines(t *testing.T) {
	m := NewManager(t.TempDir(), 5*time.Second)

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Acquire(context.Background(), "s1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			m.Release(tok)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestRelease_NilSafe(t *testing.T) {
	m := NewManager(t.TempDir(), time.Second)
	m.Release(nil)

	tok, err := m.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	m.Release(tok)
	m.Release(tok) // double release is a no-op
}
