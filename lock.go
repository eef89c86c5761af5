package concur

import "sync"

// poisonableMutex is a sync.Mutex that remembers whether a prior holder
// panicked while it was locked. Go's sync.Mutex has no notion of this (unlike
// Rust's std::sync::Mutex, which the original implementation relied on for
// its PoisonError plumbing), so this wrapper ports that behavior: a goroutine
// that panics inside a critical section should recover, call Poison, and
// exit rather than let the panic silently leave shared state half-updated.
//
// poisonableMutex satisfies sync.Locker so it can back a sync.Cond directly.
type poisonableMutex struct {
	sync.Mutex
	poisoned bool
}

// IsPoisoned reports whether a previous holder poisoned this mutex. Callers
// must check this immediately after Lock returns, before trusting the
// guarded state.
func (p *poisonableMutex) IsPoisoned() bool {
	return p.poisoned
}

// Poison marks the mutex poisoned. Call it while still holding the lock,
// from a recover() block, before unlocking. workerSlot.withLock and
// tryWithLock are the production callers: they recover a panic from the
// critical section, poison the slot's mutex, broadcast to wake any worker
// parked on the slot's condition variable, then re-panic to preserve normal
// Go panic semantics for the goroutine that owned the section.
func (p *poisonableMutex) Poison() {
	p.poisoned = true
}

// TryLock attempts to acquire the mutex without blocking, reporting whether
// it was acquired. Embeds sync.Mutex.TryLock (Go 1.18+).
func (p *poisonableMutex) TryLock() bool {
	return p.Mutex.TryLock()
}
