// Package lock provides lock implementations for shared.Resource.
//
// Semaphore and Instrumented are process-local. Locker is a keyed,
// distributed lock with in-memory and Redis implementations; Keyed adapts
// one key of a Locker into a shared.Lock so that a value can be protected
// across processes. Locks may carry a TTL so that a crashed holder does not
// block others forever. Every acquire returns a token and only that token
// releases the hold. Redis waiters are woken through a syncbus.Bus and poll
// otherwise.
package lock
