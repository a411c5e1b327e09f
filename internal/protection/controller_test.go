package protection

import (
	"testing"
	"time"
)

func TestEngagesOnFailureSpike(t *testing.T) {
	c := New(10*time.Second, 3, 2)
	now := time.Now()

	for i := 0; i < 2; i++ {
		c.RecordOutcome(now, false, 1)
	}
	if c.On() {
		t.Fatalf("protection engaged before trigger threshold reached")
	}

	c.RecordOutcome(now, false, 1)
	if !c.On() {
		t.Fatalf("protection should engage once failure count reaches threshold")
	}
	if c.ReasonCode() != ReasonWindowFailureSpike {
		t.Errorf("reason = %q, want %q", c.ReasonCode(), ReasonWindowFailureSpike)
	}
}

func TestEngagesOnNoEligibleBackends(t *testing.T) {
	c := New(10*time.Second, 100, 2)
	now := time.Now()

	c.Observe(now, 0)
	if !c.On() {
		t.Fatalf("protection should engage when eligible set is empty")
	}
	if c.ReasonCode() != ReasonNoEligibleBackends {
		t.Errorf("reason = %q, want %q", c.ReasonCode(), ReasonNoEligibleBackends)
	}
}

func TestClearsAfterStableSuccessesWithEligibleBackends(t *testing.T) {
	c := New(10*time.Second, 1, 2)
	now := time.Now()

	c.RecordOutcome(now, false, 1)
	if !c.On() {
		t.Fatalf("expected protection on")
	}

	c.RecordOutcome(now, true, 1)
	if c.On() != true {
		t.Fatalf("single success should not yet clear (need stable threshold)")
	}

	c.RecordOutcome(now, true, 1)
	if c.On() {
		t.Fatalf("protection should clear after stable success threshold reached")
	}
	if c.ReasonCode() != ReasonNone {
		t.Errorf("reason should reset to empty once cleared, got %q", c.ReasonCode())
	}
}

func TestDoesNotClearWithoutEligibleBackends(t *testing.T) {
	c := New(10*time.Second, 1, 1)
	now := time.Now()

	c.RecordOutcome(now, false, 1)
	if !c.On() {
		t.Fatalf("expected protection on")
	}

	c.RecordOutcome(now, true, 0)
	if !c.On() {
		t.Fatalf("protection must not clear while eligible set is empty, even with stable successes")
	}
}

func TestWindowExpiresOldFailures(t *testing.T) {
	c := New(50*time.Millisecond, 3, 2)
	start := time.Now()

	c.RecordOutcome(start, false, 1)
	c.RecordOutcome(start, false, 1)
	if c.On() {
		t.Fatalf("protection should not engage before threshold reached")
	}

	later := start.Add(100 * time.Millisecond)
	c.RecordOutcome(later, false, 1)
	if c.On() {
		t.Fatalf("old failures outside the window must not count toward the trigger threshold")
	}
}

func TestFailureThenSuccessResetsConsecutiveCounter(t *testing.T) {
	c := New(10*time.Second, 100, 3)
	now := time.Now()

	c.RecordOutcome(now, true, 1)
	c.RecordOutcome(now, true, 1)
	c.RecordOutcome(now, false, 1)
	c.RecordOutcome(now, true, 1)
	c.RecordOutcome(now, true, 1)

	// Force engage via a separate path, then confirm clearing needs a fresh
	// run of stable successes rather than counting the ones before the
	// interrupting failure.
	c2 := New(10*time.Second, 1, 3)
	c2.RecordOutcome(now, false, 1)
	c2.RecordOutcome(now, true, 1)
	c2.RecordOutcome(now, true, 1)
	c2.RecordOutcome(now, false, 1)
	c2.RecordOutcome(now, true, 1)
	c2.RecordOutcome(now, true, 1)
	if !c2.On() {
		t.Fatalf("expected protection still on: interrupting failure should have reset the consecutive-success streak")
	}
	c2.RecordOutcome(now, true, 1)
	if c2.On() {
		t.Fatalf("protection should clear once 3 consecutive successes accumulate after the last failure")
	}
}
