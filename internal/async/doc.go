// Package async is the Async Façade: the same Memory/Session/Decay
// service methods, offered as futures dispatched onto a bounded
// worker pool instead of blocking the caller. Each call runs on its own
// goroutine once a slot of the semaphore-gated pool is free, so calls
// submitted without waiting on the previous future may run
// concurrently and reach storage in any order; cancellation of a
// future never cancels dispatched DB work already in flight.
package async
