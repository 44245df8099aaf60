// Package shared couples a mutual-exclusion lock to the value it protects.
// A Resource pairs one Lock with one value and hands out Guards; the value is
// reachable only through a Guard that holds the lock, and releasing the Guard
// (typically with defer) unlocks it exactly once. A Bundle groups resources of
// distinct value types so that any one of them can be acquired by type.
package shared
