// Package concur provides two concurrency primitives: a work-stealing task
// scheduler and a concurrent TTL cache with write-through.
//
// Scheduler distributes fire-and-forget Tasks across a fixed pool of
// worker goroutines, each owning a queue. Submission load-balances across
// queues, idle workers steal from busy peers, and a supervisor goroutine
// flags tasks that have sat too long unexecuted. Shutdown drains via
// poison pills rather than an external channel.
//
// ConcurrentCache maps keys to values with per-entry TTLs. Concurrent
// callers requesting the same missing key coalesce onto a single recompute;
// every successful put is appended to a write-through backing log.
package concur
