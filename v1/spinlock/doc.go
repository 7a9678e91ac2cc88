// Package spinlock provides a test-and-test-and-set (TTAS) mutual exclusion
// lock built on raw atomics. A secondary guard flag makes the check-then-set
// on the lock state atomic as a compound operation, so contenders spin on the
// guard only for the brief instant of the check rather than for the whole
// time the lock is held. Backoff intervals are configurable through options.
package spinlock
