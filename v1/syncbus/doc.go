// Package syncbus carries lock release notifications between lockers.
// A waiter subscribes to a key and is woken when a holder publishes on it;
// notifications are hints, so subscribers re-check the lock after waking.
// Implementations exist for a single process, Redis pub/sub and NATS.
package syncbus
