package concur

import "testing"

func TestPoisonableMutexIsPoisonedAfterPoison(t *testing.T) {
	var m poisonableMutex
	m.Lock()
	if m.IsPoisoned() {
		t.Fatal("expected a fresh mutex to be unpoisoned")
	}
	m.Poison()
	if !m.IsPoisoned() {
		t.Fatal("expected IsPoisoned to report true after Poison")
	}
	m.Unlock()
}

func TestPoisonableMutexTryLock(t *testing.T) {
	var m poisonableMutex
	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed on an unlocked mutex")
	}
	if m.TryLock() {
		t.Fatal("expected a second TryLock to fail while held")
	}
	m.Unlock()
}
