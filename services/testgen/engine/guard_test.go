// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuardSingleFlight(t *testing.T) {
	guard := NewGuard()

	release, err := guard.TryAcquire("s1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := guard.TryAcquire("s1"); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("second acquire error = %v, want ErrGenerationInProgress", err)
	}

	// A different session is unaffected.
	otherRelease, err := guard.TryAcquire("s2")
	if err != nil {
		t.Fatalf("unrelated session blocked: %v", err)
	}
	otherRelease()

	release()
	release2, err := guard.TryAcquire("s1")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestGuardConcurrentContention(t *testing.T) {
	guard := NewGuard()

	const attempts = 32
	var inCritical atomic.Int32
	var maxInCritical atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := guard.TryAcquire("contended")
			if err != nil {
				return
			}
			defer release()
			cur := inCritical.Add(1)
			if cur > maxInCritical.Load() {
				maxInCritical.Store(cur)
			}
			inCritical.Add(-1)
		}()
	}
	close(start)
	wg.Wait()

	if maxInCritical.Load() > 1 {
		t.Fatalf("%d goroutines held the guard at once", maxInCritical.Load())
	}
}

func TestGuardForget(t *testing.T) {
	guard := NewGuard()
	release, err := guard.TryAcquire("gone")
	if err != nil {
		t.Fatal(err)
	}
	release()
	guard.Forget("gone")

	// Acquiring after Forget builds a fresh lock.
	release, err = guard.TryAcquire("gone")
	if err != nil {
		t.Fatalf("acquire after Forget failed: %v", err)
	}
	release()
}
